package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// contentPolicy keeps structural markup and drops anything active.
var contentPolicy = bluemonday.UGCPolicy()

// collapse joins all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func runeLen(s string) int {
	return len([]rune(s))
}

// fragmentText sanitises an HTML fragment and returns its rendered text.
// Markup is removed on the parsed tree, so escaped angle brackets in the
// prose survive as text.
func fragmentText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentPolicy.Sanitize(fragment)))
	if err != nil {
		return ""
	}
	return regionText(doc.Selection)
}

const blockElements = "p, div, br, li, dt, dd, h1, h2, h3, h4, h5, h6, tr, td, th, " +
	"section, article, header, footer, aside, blockquote, pre, figcaption"

// regionText returns the rendered text of a selection without scripts,
// styles and templates. Block boundaries become spaces.
func regionText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("script, style, noscript, template").Remove()
	clone.Find(blockElements).AfterHtml(" ")
	return collapse(clone.Text())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
