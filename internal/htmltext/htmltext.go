// Package htmltext reduces an HTML document to the text a user would see.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// skipped are subtrees that never contribute visible text.
var skipped = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"head":     {},
}

// Extract returns the whitespace-normalized visible text of the document.
// Malformed markup is handled leniently; input that cannot be parsed at all
// yields the empty string.
func Extract(doc string) string {
	if doc == "" {
		return ""
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skipped[n.Data]; skip {
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}
