package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Selector describes how one field is pulled out of a document.
type Selector struct {
	// Type is "css" or "xpath".
	Type string `json:"type"`

	// Value is the selector expression.
	Value string `json:"value"`

	// Attribute, when set, extracts the named attribute instead of the
	// element text.
	Attribute string `json:"attribute,omitempty"`

	// Multiple extracts every match as a list instead of the first match.
	Multiple bool `json:"multiple,omitempty"`
}

// ExtractFields applies the selector map to the parsed document. Fields
// whose selector matches nothing come back as nil so the caller can see the
// miss in the result data.
func ExtractFields(root *html.Node, selectors map[string]Selector) (map[string]any, error) {
	doc := goquery.NewDocumentFromNode(root)

	data := make(map[string]any, len(selectors))
	for field, sel := range selectors {
		switch sel.Type {
		case "css":
			data[field] = extractCSS(doc, sel)
		case "xpath":
			nodes, err := htmlquery.QueryAll(root, sel.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: xpath %q: %w", field, sel.Value, err)
			}
			data[field] = extractXPath(nodes, sel)
		default:
			return nil, fmt.Errorf("field %q: unknown selector type %q", field, sel.Type)
		}
	}
	return data, nil
}

func extractCSS(doc *goquery.Document, sel Selector) any {
	matches := doc.Find(sel.Value)

	if sel.Multiple {
		values := make([]any, 0, matches.Length())
		matches.Each(func(_ int, s *goquery.Selection) {
			values = append(values, selectionValue(s, sel.Attribute))
		})
		return values
	}

	if matches.Length() == 0 {
		return nil
	}
	return selectionValue(matches.First(), sel.Attribute)
}

func selectionValue(s *goquery.Selection, attribute string) any {
	if attribute != "" {
		v, ok := s.Attr(attribute)
		if !ok {
			return nil
		}
		return v
	}
	return strings.TrimSpace(s.Text())
}

func extractXPath(nodes []*html.Node, sel Selector) any {
	if sel.Multiple {
		values := make([]any, 0, len(nodes))
		for _, n := range nodes {
			values = append(values, nodeValue(n, sel.Attribute))
		}
		return values
	}

	if len(nodes) == 0 {
		return nil
	}
	return nodeValue(nodes[0], sel.Attribute)
}

func nodeValue(n *html.Node, attribute string) any {
	if attribute != "" {
		v := htmlquery.SelectAttr(n, attribute)
		if v == "" {
			return nil
		}
		return v
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

// PageMetadata pulls the standard descriptive fields from a parsed page.
func PageMetadata(root *html.Node) map[string]any {
	doc := goquery.NewDocumentFromNode(root)
	return map[string]any{
		"title":            strings.TrimSpace(doc.Find("title").First().Text()),
		"meta_description": doc.Find(`meta[name="description"]`).AttrOr("content", ""),
		"meta_keywords":    doc.Find(`meta[name="keywords"]`).AttrOr("content", ""),
		"canonical_url":    doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
	}
}
