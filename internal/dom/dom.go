// Package dom holds goquery helpers shared by the extraction strategies and
// the pattern learner.
package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Text returns the trimmed text content of s.
func Text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// TextNodes calls fn for every non-blank text node in document order,
// skipping script and style content. fn returns false to stop.
func TextNodes(doc *goquery.Document, fn func(n *html.Node) bool) {
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return true
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			if !fn(n) {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, root := range doc.Nodes {
		if !walk(root) {
			return
		}
	}
}

// TextOwners returns up to limit elements whose own text nodes contain
// needle, in document order. Each element appears once.
func TextOwners(doc *goquery.Document, needle string, limit int) []*goquery.Selection {
	if needle == "" || limit <= 0 {
		return nil
	}
	var out []*goquery.Selection
	seen := make(map[*html.Node]bool)
	TextNodes(doc, func(n *html.Node) bool {
		if n.Parent == nil || n.Parent.Type != html.ElementNode || seen[n.Parent] {
			return true
		}
		if strings.Contains(n.Data, needle) {
			seen[n.Parent] = true
			out = append(out, goquery.NewDocumentFromNode(n.Parent).Selection)
		}
		return len(out) < limit
	})
	return out
}

// ExactTextOwner returns the first element with a text node equal to text
// after trimming, falling back to the first containing it.
func ExactTextOwner(doc *goquery.Document, text string) *goquery.Selection {
	if text == "" {
		return nil
	}
	var found *html.Node
	TextNodes(doc, func(n *html.Node) bool {
		if strings.TrimSpace(n.Data) == text && n.Parent != nil && n.Parent.Type == html.ElementNode {
			found = n.Parent
			return false
		}
		return true
	})
	if found != nil {
		return goquery.NewDocumentFromNode(found).Selection
	}
	if owners := TextOwners(doc, text, 1); len(owners) > 0 {
		return owners[0]
	}
	return nil
}

// Classes returns the class list of s in attribute order.
func Classes(s *goquery.Selection) []string {
	return strings.Fields(s.AttrOr("class", ""))
}

// TagName returns the lowercase tag name of the first node in s.
func TagName(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return goquery.NodeName(s)
}

// Selector builds a CSS selector for s: #id when present, otherwise tag
// plus every class.
func Selector(s *goquery.Selection) string {
	tag := TagName(s)
	if id, ok := s.Attr("id"); ok && id != "" && !strings.ContainsAny(id, " .#:[]") {
		return "#" + id
	}
	return Compose(tag, Classes(s), "")
}

// Compose builds tag#id.class1.class2 from parts. Classes that would break
// the selector syntax are dropped.
func Compose(tag string, classes []string, id string) string {
	var b strings.Builder
	b.WriteString(tag)
	if id != "" && !strings.ContainsAny(id, " .#:[]") {
		b.WriteString("#")
		b.WriteString(id)
	}
	for _, c := range classes {
		if c == "" || strings.ContainsAny(c, ".#:[]()/") {
			continue
		}
		b.WriteString(".")
		b.WriteString(c)
	}
	return b.String()
}
