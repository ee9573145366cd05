package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rahul/scout/internal/browser"
)

// Hit is one organic entry of a search results page.
type Hit struct {
	Rank    int    `json:"rank"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type listingMarkup struct {
	container string
	link      string
	title     string
	snippet   string
}

// Markups are tried in order; the first that yields hits wins.
var listingMarkups = []listingMarkup{
	{ // DuckDuckGo
		container: `article[data-testid="result"], .result, .web-result`,
		link:      `a[data-testid="result-title-a"], a.result__a, h2 a`,
		title:     `a[data-testid="result-title-a"], a.result__a, h2`,
		snippet:   `[data-result="snippet"], .result__snippet, span[data-testid="result-snippet"]`,
	},
	{ // Bing
		container: `li.b_algo`,
		link:      `h2 a, .b_title a`,
		title:     `h2`,
		snippet:   `.b_caption p, p`,
	},
	{ // Google
		container: `div.g`,
		link:      `a:has(h3)`,
		title:     `h3`,
		snippet:   `.VwiC3b, [data-sncf]`,
	},
	{ // anything with linked headings
		container: `h2:has(a[href]), h3:has(a[href])`,
		link:      `a[href]`,
		title:     `a[href]`,
	},
}

// ParseListing reads up to limit hits from a results page. Only http(s)
// links leaving the results host are kept; duplicates are dropped.
func ParseListing(snap browser.Snapshot, limit int) []Hit {
	if limit <= 0 || strings.TrimSpace(snap.HTML) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(snap.URL)

	for _, m := range listingMarkups {
		if hits := m.parse(doc, base, limit); len(hits) > 0 {
			return hits
		}
	}
	return nil
}

func (m listingMarkup) parse(doc *goquery.Document, base *url.URL, limit int) []Hit {
	var hits []Hit
	seen := make(map[string]bool)

	doc.Find(m.container).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		link := c.Find(m.link).First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target, ok := resolveResultURL(base, href)
		if !ok || seen[target] {
			return true
		}
		seen[target] = true

		title := collapse(c.Find(m.title).First().Text())
		if title == "" {
			title = collapse(link.Text())
		}
		if title == "" {
			title = target
		}

		var snippet string
		if m.snippet != "" {
			snippet = truncate(collapse(c.Find(m.snippet).First().Text()), maxSnippetSize)
		}

		hits = append(hits, Hit{
			Rank:    len(hits) + 1,
			Title:   title,
			URL:     target,
			Snippet: snippet,
		})
		return len(hits) < limit
	})
	return hits
}

// resolveResultURL makes href absolute, unwraps DuckDuckGo redirects, and
// rejects non-web links and links back to the results host.
func resolveResultURL(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}

	if strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			if decoded, err := url.Parse(target); err == nil {
				u = decoded
			}
		}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	if base != nil && base.Host != "" && sameHost(u.Host, base.Host) {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func sameHost(a, b string) bool {
	trim := func(h string) string { return strings.TrimPrefix(strings.ToLower(h), "www.") }
	return trim(a) == trim(b)
}
