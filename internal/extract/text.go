package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/replacementbot/internal/schedule"
	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "caption": true,
	"div": true, "dl": true, "dt": true, "dd": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "tbody": true, "thead": true, "tfoot": true,
	"tr": true, "ul": true,
}

// TextLines renders the selection's visible text one block per line, with
// whitespace collapsed and empty lines dropped.
func TextLines(sel *goquery.Selection) []string {
	var lines []string
	var b strings.Builder

	flush := func() {
		if line := collapse(b.String()); line != "" {
			lines = append(lines, line)
		}
		b.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head", "template":
				return
			case "br":
				flush()
				return
			case "td", "th":
				b.WriteByte(' ')
			}
		}

		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}

	for _, n := range sel.Nodes {
		walk(n)
	}
	flush()
	return lines
}

// FindDateLine returns the first of the leading lines that mentions a keyword.
func FindDateLine(lines, keywords []string, limit int) (string, bool) {
	if limit > len(lines) {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		if containsAny(strings.ToLower(line), keywords) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

var dateRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4}|\d{2})`)

// ParseDate finds a DD.MM.YY (or DD.MM.YYYY) date in text and returns it in
// ISO form. ok is false when there is no valid date.
func ParseDate(text string) (string, bool) {
	m := dateRe.FindString(text)
	if m == "" {
		return "", false
	}
	layout := "02.01.06"
	if len(m) == len("02.01.2006") {
		layout = "02.01.2006"
	}
	t, err := time.Parse(layout, m)
	if err != nil {
		return "", false
	}
	return t.Format(schedule.DateLayout), true
}
