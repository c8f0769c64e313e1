package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageText is the readable summary of a visited page.
type PageText struct {
	Title    string
	Meta     string
	Headings []string
	Body     string
}

// String concatenates the parts in the order the classifier expects.
func (t PageText) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", t.Title)
	fmt.Fprintf(&b, "Description: %s\n", t.Meta)
	fmt.Fprintf(&b, "Headings: %s\n", strings.Join(t.Headings, " | "))
	fmt.Fprintf(&b, "Content: %s", t.Body)
	return b.String()
}

// Empty reports whether nothing readable was found.
func (t PageText) Empty() bool {
	return t.Title == "" && t.Meta == "" && len(t.Headings) == 0 && t.Body == ""
}

const outerHTMLScript = `document.documentElement ? document.documentElement.outerHTML : ""`

// ExtractPageText reads the current document of page and summarizes it.
func ExtractPageText(ctx context.Context, page Page, previewChars int) (PageText, error) {
	var html string
	if err := page.Evaluate(ctx, outerHTMLScript, &html); err != nil {
		return PageText{}, err
	}
	return ParsePageText(html, previewChars)
}

// ParsePageText extracts title, meta description, h1-h3 text and a body
// preview capped at previewChars runes.
func ParsePageText(html string, previewChars int) (PageText, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageText{}, fmt.Errorf("parse html: %w", err)
	}

	var t PageText
	t.Title = collapse(doc.Find("title").First().Text())

	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		prop, _ := s.Attr("property")
		if strings.EqualFold(name, "description") || strings.EqualFold(prop, "og:description") {
			t.Meta = collapse(s.AttrOr("content", ""))
			return false
		}
		return true
	})

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if h := collapse(s.Text()); h != "" {
			t.Headings = append(t.Headings, h)
		}
	})

	body := doc.Find("body")
	body.Find("script, style, noscript, svg").Remove()
	t.Body = truncate(collapse(body.Text()), previewChars)
	return t, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
