package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/reasoner"
)

type stubReasoner struct {
	obj   map[string]any
	err   error
	calls int
	last  reasoner.Prompt
}

func (s *stubReasoner) Reason(ctx context.Context, p reasoner.Prompt, schema reasoner.Schema) (map[string]any, error) {
	s.calls++
	s.last = p
	return s.obj, s.err
}

func snapshot(url, html string) browser.Snapshot {
	return browser.Snapshot{URL: url, Title: "Snapshot Title", HTML: html, ReadyState: "complete"}
}

const articlePage = `<html>
<head>
  <title>OpenAI ships new model</title>
  <meta name="description" content="A short summary of the launch.">
  <meta name="author" content="Jane Writer">
</head>
<body>
  <nav>Home | World | Tech</nav>
  <article>
    <h1>OpenAI ships new model</h1>
    <time datetime="2024-05-13T10:00:00Z">May 13</time>
    <h2>What changed</h2>
    <p>The company released a new model on Monday that handles text, audio and images in a single network.</p>
    <script>trackView()</script>
    <h2>Availability</h2>
    <p>It is rolling out to all users over the coming weeks, starting with paid subscribers.</p>
    <h3>  Pricing  </h3>
    <h3></h3>
  </article>
</body>
</html>`

func TestExtract_ArticlePage(t *testing.T) {
	r := &stubReasoner{obj: map[string]any{"key_points": []any{"New model released", "  ", "Rolling out to all users"}}}
	e := New(r, DefaultConfig(), nil)

	res := e.Extract(context.Background(), snapshot("https://news.example.com/a", articlePage))

	assert.True(t, res.Extracted)
	assert.Equal(t, "OpenAI ships new model", res.Title)
	assert.Equal(t, "https://news.example.com/a", res.URL)
	assert.Equal(t, "A short summary of the launch.", res.MetaDescription)
	assert.Equal(t, "A short summary of the launch.", res.Snippet)
	assert.Equal(t, "Jane Writer", res.Author)
	assert.Equal(t, "2024-05-13T10:00:00Z", res.PublicationDate)
	assert.Equal(t, []string{"OpenAI ships new model"}, res.Headings.H1)
	assert.Equal(t, []string{"What changed", "Availability"}, res.Headings.H2)
	assert.Equal(t, []string{"Pricing"}, res.Headings.H3)

	assert.Contains(t, res.Content, "single network. Availability It is rolling out")
	assert.NotContains(t, res.Content, "trackView")
	assert.NotContains(t, res.Content, "Home | World")
	assert.Equal(t, len([]rune(res.Content)), res.ContentLength)

	assert.Equal(t, []string{"New model released", "Rolling out to all users"}, res.KeyPoints)
	assert.Equal(t, 1, r.calls)
	assert.Contains(t, r.last.User, "OpenAI ships new model")
}

func TestExtract_KeepsEscapedAngleBrackets(t *testing.T) {
	page := `<html><body><article><p>Declare a std::vector&lt;int&gt; values and compare a &lt;b with b&gt; c; ` +
		strings.Repeat("the loop stays readable. ", 6) + `</p></article></body></html>`

	res := New(nil, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://example.com/", page))

	assert.True(t, res.Extracted)
	assert.Contains(t, res.Content, "Declare a std::vector<int> values and compare a <b with b> c;")
	assert.True(t, strings.HasPrefix(res.Content, res.ContentPreview))
}

func TestFragmentText(t *testing.T) {
	got := fragmentText(`<div><p>Use map&lt;string, int&gt; here.</p><script>alert(1)</script><p>Next</p></div>`)
	assert.Equal(t, "Use map<string, int> here. Next", got)
}

func TestExtract_CapsContent(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	page := `<html><body><main><p>` + long + `</p></main></body></html>`

	res := New(nil, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://example.com/", page))

	assert.True(t, res.Extracted)
	assert.LessOrEqual(t, res.ContentLength, 2000)
	assert.LessOrEqual(t, len([]rune(res.ContentPreview)), 500)
	assert.True(t, strings.HasPrefix(res.Content, res.ContentPreview))
	assert.Empty(t, res.KeyPoints)
	assert.NotNil(t, res.KeyPoints)
}

func TestExtract_ShortPageFallsBackToBody(t *testing.T) {
	page := `<html><head><title>Tiny</title></head><body><div>Just a line.</div></body></html>`

	res := New(nil, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://example.com/", page))

	assert.Equal(t, "Tiny", res.Title)
	assert.Equal(t, "Just a line.", res.Content)
	assert.Equal(t, 12, res.ContentLength)
	assert.Empty(t, res.PublicationDate)
	assert.Empty(t, res.Author)
	assert.Empty(t, res.MetaDescription)
	assert.Empty(t, res.Headings.H1)
}

func TestExtract_EmptyPageKeepsRequiredFields(t *testing.T) {
	res := New(nil, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://example.com/empty", ""))

	assert.Equal(t, "Snapshot Title", res.Title)
	assert.Equal(t, "https://example.com/empty", res.URL)
	assert.Zero(t, res.ContentLength)
	assert.False(t, res.Extracted)
	assert.NotNil(t, res.KeyPoints)
}

func TestExtract_ReasonerFailureLeavesKeyPointsEmpty(t *testing.T) {
	r := &stubReasoner{err: errors.New("timeout")}
	res := New(r, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://news.example.com/a", articlePage))

	assert.True(t, res.Extracted)
	assert.Equal(t, []string{}, res.KeyPoints)
	assert.NotEmpty(t, res.Content)
}

func TestExtract_KeyPointsCapped(t *testing.T) {
	r := &stubReasoner{obj: map[string]any{"key_points": []any{"a", "b", "c", "d", "e", "f", "g"}}}
	res := New(r, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://news.example.com/a", articlePage))

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, res.KeyPoints)
}

func TestExtract_MetadataFallbacks(t *testing.T) {
	page := `<html><head>
	<meta property="og:title" content="OG Title">
	<meta property="og:description" content="OG description">
	</head><body>
	<span class="post-date">March 3, 2023</span>
	<a rel="author" href="/me">Sam</a>
	<p>Body.</p>
	</body></html>`

	res := New(nil, DefaultConfig(), nil).Extract(context.Background(), snapshot("https://blog.example.com/p", page))

	assert.Equal(t, "OG Title", res.Title)
	assert.Equal(t, "OG description", res.MetaDescription)
	assert.Equal(t, "2023-03-03T00:00:00Z", res.PublicationDate)
	assert.Equal(t, "Sam", res.Author)
}

const ddgPage = `<html><body>
<div id="links">
  <article data-testid="result">
    <h2><a data-testid="result-title-a" href="https://www.reuters.com/tech/ai-1">AI story one</a></h2>
    <div data-result="snippet">First snippet about AI.</div>
  </article>
  <div class="result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.theverge.com%2Fai%2F2&amp;rut=abc">AI story two</a>
    <a class="result__snippet">Second snippet.</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://www.reuters.com/tech/ai-1#top">Duplicate</a>
  </div>
  <div class="result">
    <a class="result__a" href="/settings">Internal</a>
  </div>
  <div class="result">
    <a class="result__a" href="javascript:void(0)">Script</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://arstechnica.com/ai/3">AI story three</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://example.org/4">AI story four</a>
  </div>
</div>
</body></html>`

func TestParseListing_DuckDuckGo(t *testing.T) {
	hits := ParseListing(snapshot("https://duckduckgo.com/?q=ai+news", ddgPage), 3)

	require.Len(t, hits, 3)
	assert.Equal(t, Hit{Rank: 1, Title: "AI story one", URL: "https://www.reuters.com/tech/ai-1", Snippet: "First snippet about AI."}, hits[0])
	assert.Equal(t, "https://www.theverge.com/ai/2", hits[1].URL)
	assert.Equal(t, "Second snippet.", hits[1].Snippet)
	assert.Equal(t, 2, hits[1].Rank)
	assert.Equal(t, "https://arstechnica.com/ai/3", hits[2].URL)
	assert.Equal(t, 3, hits[2].Rank)
}

func TestParseListing_Bing(t *testing.T) {
	page := `<html><body><ol id="b_results">
	<li class="b_algo"><h2><a href="https://go.dev/doc">Go docs</a></h2>
	<div class="b_caption"><p>` + strings.Repeat("x", 300) + `</p></div></li>
	<li class="b_algo"><h2><a href="https://pkg.go.dev">Packages</a></h2></li>
	</ol></body></html>`

	hits := ParseListing(snapshot("https://www.bing.com/search?q=go", page), 5)

	require.Len(t, hits, 2)
	assert.Equal(t, "Go docs", hits[0].Title)
	assert.Len(t, []rune(hits[0].Snippet), 200)
	assert.Equal(t, "https://pkg.go.dev", hits[1].URL)
}

func TestParseListing_Google(t *testing.T) {
	page := `<html><body>
	<div class="g"><a href="https://www.wikipedia.org/wiki/Go"><h3>Go (language)</h3></a><div class="VwiC3b">Go is a language.</div></div>
	</body></html>`

	hits := ParseListing(snapshot("https://www.google.com/search?q=go", page), 3)

	require.Len(t, hits, 1)
	assert.Equal(t, "Go (language)", hits[0].Title)
	assert.Equal(t, "Go is a language.", hits[0].Snippet)
}

func TestParseListing_Empty(t *testing.T) {
	assert.Empty(t, ParseListing(snapshot("https://duckduckgo.com/?q=x", "<html><body>No results.</body></html>"), 3))
	assert.Empty(t, ParseListing(snapshot("https://duckduckgo.com/?q=x", ""), 3))
	assert.Empty(t, ParseListing(snapshot("https://duckduckgo.com/?q=x", ddgPage), 0))
}
