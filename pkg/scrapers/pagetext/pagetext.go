// Package pagetext flattens an HTML document into the ordered text tokens the promotion resolver reads.
package pagetext

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// Tokens returns the trimmed, non-empty lines of every text node under sel in document order.
func Tokens(sel *goquery.Selection) []string {
	var tokens []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch {
			case name == "#text":
				for _, line := range strings.Split(c.Text(), "\n") {
					if line = strings.TrimSpace(line); line != "" {
						tokens = append(tokens, line)
					}
				}
			case skipped[name], strings.HasPrefix(name, "#"):
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return tokens
}

// FromHTML parses r and returns the tokens of its body.
func FromHTML(r io.Reader) ([]string, *goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, err
	}
	return Tokens(doc.Find("body")), doc, nil
}

// After returns the first token within the next n tokens after label that does not end in ":".
func After(tokens []string, label string, n int) string {
	for i, t := range tokens {
		if t != label {
			continue
		}
		for _, next := range tokens[i+1 : min(len(tokens), i+1+n)] {
			if !strings.HasSuffix(next, ":") {
				return next
			}
		}
		return ""
	}
	return ""
}
