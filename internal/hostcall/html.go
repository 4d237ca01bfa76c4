package hostcall

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
)

// HTML provides CSS and XPath queries and sanitizing
type HTML struct {
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewHTML creates the HTML provider
func NewHTML() *HTML {
	return &HTML{
		ugc:    bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// Methods returns HTML method definitions
func (h *HTML) Methods() []Method {
	return []Method{
		{
			Name:        "html.select",
			Description: "Select elements with a CSS selector",
			Parameters: []Parameter{
				{Name: "html", Type: "string", Description: "HTML content", Required: true},
				{Name: "selector", Type: "string", Description: "CSS selector", Required: true},
				{Name: "attr", Type: "string", Description: "Attribute to extract", Required: false},
			},
			Returns: "array",
		},
		{
			Name:        "html.xpath",
			Description: "Select nodes with an XPath expression",
			Parameters: []Parameter{
				{Name: "html", Type: "string", Description: "HTML content", Required: true},
				{Name: "xpath", Type: "string", Description: "XPath expression", Required: true},
			},
			Returns: "array",
		},
		{
			Name:        "html.sanitize",
			Description: "Strip unsafe markup (policy: ugc or strict)",
			Parameters: []Parameter{
				{Name: "html", Type: "string", Description: "HTML content", Required: true},
				{Name: "policy", Type: "string", Description: "ugc (default) or strict", Required: false},
			},
			Returns: "string",
		},
	}
}

// Execute routes to the HTML method
func (h *HTML) Execute(_ context.Context, method string, params Params) (any, error) {
	src, err := params.String("html")
	if err != nil {
		return nil, err
	}

	switch method {
	case "html.select":
		selector, err := params.String("selector")
		if err != nil {
			return nil, err
		}
		return h.selectCSS(src, selector, params.StringOr("attr", ""))
	case "html.xpath":
		expr, err := params.String("xpath")
		if err != nil {
			return nil, err
		}
		return h.xpath(src, expr)
	case "html.sanitize":
		switch policy := params.StringOr("policy", "ugc"); policy {
		case "ugc":
			return h.ugc.Sanitize(src), nil
		case "strict":
			return h.strict.Sanitize(src), nil
		default:
			return nil, fmt.Errorf("%w: unknown policy %q", ErrInvalidParams, policy)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

func (h *HTML) selectCSS(src, selector, attr string) ([]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := []any{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		item := map[string]any{"text": strings.TrimSpace(s.Text())}
		if attr != "" {
			if v, ok := s.Attr(attr); ok {
				item["attr"] = v
			}
		}
		out = append(out, item)
	})
	return out, nil
}

func (h *HTML) xpath(src, expr string) ([]any, error) {
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: xpath: %v", ErrInvalidParams, err)
	}

	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{
			"text": strings.TrimSpace(htmlquery.InnerText(n)),
			"html": htmlquery.OutputHTML(n, true),
		})
	}
	return out, nil
}
