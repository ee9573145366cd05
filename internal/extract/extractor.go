// Package extract turns loaded pages into structured results and reads
// search engine result listings.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/observability"
	"github.com/rahul/scout/internal/reasoner"
)

type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// Result is the structured content of one page. Every field except Title,
// URL and ContentLength may be empty.
type Result struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Snippet         string   `json:"snippet"`
	Content         string   `json:"content"`
	ContentPreview  string   `json:"content_preview"`
	MetaDescription string   `json:"meta_description"`
	Headings        Headings `json:"headings"`
	PublicationDate string   `json:"publication_date,omitempty"`
	Author          string   `json:"author,omitempty"`
	KeyPoints       []string `json:"key_points"`
	ContentLength   int      `json:"content_length"`
	Extracted       bool     `json:"extracted"`
}

type Config struct {
	ContentCap     int
	PreviewCap     int
	MinRegionChars int
	// KeyPointsInput is how many runes of content the reasoner sees.
	KeyPointsInput int
	// KeyPointsPrompt is the system prompt for key point extraction.
	KeyPointsPrompt string
}

func DefaultConfig() Config {
	return Config{
		ContentCap:     2000,
		PreviewCap:     500,
		MinRegionChars: 100,
		KeyPointsInput: 1500,
		KeyPointsPrompt: "Extract 3 to 5 concise, factual key points from the page content. " +
			"Each key point is one short sentence.",
	}
}

var KeyPointsSchema = reasoner.Schema{
	Name:        "key_points",
	Description: "Key facts stated in the page content.",
	Fields: []reasoner.Field{
		{
			Name:        "key_points",
			Description: "Between 3 and 5 short factual statements.",
			Type:        reasoner.TypeArray,
			Required:    true,
			Items:       &reasoner.Field{Type: reasoner.TypeString},
		},
	},
}

const (
	maxKeyPoints   = 5
	maxHeadings    = 10
	maxMetaLength  = 100
	maxSnippetSize = 200
)

var (
	articleSelectors = []string{
		"article",
		`[role="article"]`,
		".article-content",
		".post-content",
		".entry-content",
		"main article",
	}
	mainSelectors = []string{
		"main",
		`[role="main"]`,
		".content",
		"#content",
	}
)

type Extractor struct {
	cfg      Config
	reasoner reasoner.Reasoner
	logger   *observability.Logger
}

// New returns an extractor. A nil reasoner disables key points.
func New(r reasoner.Reasoner, cfg Config, logger *observability.Logger) *Extractor {
	def := DefaultConfig()
	if cfg.ContentCap <= 0 {
		cfg.ContentCap = def.ContentCap
	}
	if cfg.PreviewCap <= 0 {
		cfg.PreviewCap = def.PreviewCap
	}
	if cfg.MinRegionChars <= 0 {
		cfg.MinRegionChars = def.MinRegionChars
	}
	if cfg.KeyPointsInput <= 0 {
		cfg.KeyPointsInput = def.KeyPointsInput
	}
	if cfg.KeyPointsPrompt == "" {
		cfg.KeyPointsPrompt = def.KeyPointsPrompt
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Extractor{cfg: cfg, reasoner: r, logger: logger}
}

// Extract never fails: a page that cannot be processed yields a partial
// result with Extracted set to false.
func (e *Extractor) Extract(ctx context.Context, snap browser.Snapshot) (res Result) {
	res = Result{
		Title:     snap.Title,
		URL:       snap.URL,
		KeyPoints: []string{},
		Headings:  Headings{H1: []string{}, H2: []string{}, H3: []string{}},
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panic", zap.String("url", snap.URL), zap.Any("panic", r))
			res.Extracted = false
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		e.logger.Warn("failed to parse page", zap.String("url", snap.URL), zap.Error(err))
		return res
	}

	article := e.readable(snap)

	res.Title = firstNonEmpty(
		collapse(doc.Find("head title").First().Text()),
		metaContent(doc, `meta[property="og:title"]`),
		collapse(doc.Find("h1").First().Text()),
		snap.Title,
		article.Title,
	)
	res.MetaDescription = firstNonEmpty(
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[property="og:description"]`),
	)
	res.Headings = Headings{
		H1: headings(doc, "h1"),
		H2: headings(doc, "h2"),
		H3: headings(doc, "h3"),
	}
	res.PublicationDate = publicationDate(doc)
	res.Author = truncate(firstNonEmpty(author(doc), article.Byline), maxMetaLength)

	text := e.contentText(doc, article)
	res.Content = truncate(text, e.cfg.ContentCap)
	res.ContentPreview = truncate(text, e.cfg.PreviewCap)
	res.ContentLength = runeLen(res.Content)
	res.Snippet = truncate(firstNonEmpty(res.MetaDescription, res.ContentPreview), maxSnippetSize)
	res.Extracted = res.Content != ""

	if res.Extracted {
		res.KeyPoints = e.keyPoints(ctx, res.Title, res.Content)
	}
	return res
}

type readableArticle struct {
	Title  string
	Byline string
	Text   string
}

func (e *Extractor) readable(snap browser.Snapshot) readableArticle {
	pageURL, err := url.Parse(snap.URL)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(snap.HTML), pageURL)
	if err != nil {
		return readableArticle{}
	}
	return readableArticle{
		Title:  collapse(article.Title),
		Byline: collapse(article.Byline),
		Text:   fragmentText(article.Content),
	}
}

// contentText picks the first region that carries enough text: article-like
// markup, then the readability article, then generic main regions, then the
// whole body.
func (e *Extractor) contentText(doc *goquery.Document, article readableArticle) string {
	if text := e.firstRegion(doc, articleSelectors); text != "" {
		return text
	}
	if runeLen(article.Text) >= e.cfg.MinRegionChars {
		return article.Text
	}
	if text := e.firstRegion(doc, mainSelectors); text != "" {
		return text
	}
	return regionText(doc.Find("body"))
}

func (e *Extractor) firstRegion(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		found := doc.Find(sel)
		for i := range found.Nodes {
			text := regionText(found.Eq(i))
			if runeLen(text) >= e.cfg.MinRegionChars {
				return text
			}
		}
	}
	return ""
}

type keyPointsAnswer struct {
	KeyPoints []string `json:"key_points"`
}

func (e *Extractor) keyPoints(ctx context.Context, title, content string) []string {
	if e.reasoner == nil {
		return []string{}
	}
	prompt := reasoner.Prompt{
		System: e.cfg.KeyPointsPrompt,
		User:   fmt.Sprintf("Title: %s\n\nContent:\n%s", title, truncate(content, e.cfg.KeyPointsInput)),
	}
	answer, err := reasoner.Decode[keyPointsAnswer](ctx, e.reasoner, prompt, KeyPointsSchema)
	if err != nil {
		e.logger.Debug("key points unavailable", zap.Error(err))
		return []string{}
	}

	points := make([]string, 0, maxKeyPoints)
	for _, p := range answer.KeyPoints {
		if p = collapse(p); p != "" {
			points = append(points, p)
		}
		if len(points) == maxKeyPoints {
			break
		}
	}
	return points
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return collapse(v)
}

func headings(doc *goquery.Document, tag string) []string {
	out := []string{}
	doc.Find(tag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := collapse(s.Text()); text != "" {
			out = append(out, text)
		}
		return len(out) < maxHeadings
	})
	return out
}

// attrOrText prefers machine-readable attributes over rendered text.
func attrOrText(s *goquery.Selection, attrs ...string) string {
	for _, a := range attrs {
		if v, ok := s.Attr(a); ok && strings.TrimSpace(v) != "" {
			return collapse(v)
		}
	}
	return collapse(s.Text())
}

var dateSelectors = []string{
	"time[datetime]",
	`meta[property="article:published_time"]`,
	`[itemprop="datePublished"]`,
	`[class*="date"]`,
	`[class*="published"]`,
	"time",
}

func publicationDate(doc *goquery.Document) string {
	for _, sel := range dateSelectors {
		raw := attrOrText(doc.Find(sel).First(), "datetime", "content")
		if raw == "" {
			continue
		}
		raw = truncate(raw, maxMetaLength)
		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
			return t.Format(time.RFC3339)
		}
		return raw
	}
	return ""
}

var authorSelectors = []string{
	`meta[name="author"]`,
	`[rel="author"]`,
	`[itemprop="author"]`,
	".byline",
	`[class*="author"]`,
}

func author(doc *goquery.Document) string {
	for _, sel := range authorSelectors {
		if v := attrOrText(doc.Find(sel).First(), "content"); v != "" {
			return v
		}
	}
	return ""
}
