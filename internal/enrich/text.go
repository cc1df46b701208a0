package enrich

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStyle = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)

var blankLines = regexp.MustCompile(`\n{3,}`)

// extractor turns an HTML page into readable text. Safe for concurrent use.
type extractor struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

func newExtractor() *extractor {
	return &extractor{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Text strips boilerplate, sanitises what is left and converts it to markdown.
// When conversion fails or yields nothing the visible text of the DOM is used.
func (e *extractor) Text(page, sourceURL string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	pruneBoilerplate(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return visibleText(doc), nil
	}

	clean := e.policy.Sanitize(buf.String())
	out, err := e.md.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(out) == "" {
		return visibleText(doc), nil
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(out, "\n\n")), nil
}

func isBoilerplate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return n.Type == html.CommentNode
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header,
		atom.Iframe, atom.Svg, atom.Form:
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "style" && hiddenStyle.MatchString(a.Val) {
			return true
		}
		if a.Key == "aria-hidden" && a.Val == "true" {
			return true
		}
	}
	return false
}

// pruneBoilerplate removes navigation, scripts and hidden nodes in place.
func pruneBoilerplate(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isBoilerplate(c) {
			n.RemoveChild(c)
		} else {
			pruneBoilerplate(c)
		}
		c = next
	}
}

// visibleText concatenates text nodes, one block per line.
func visibleText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isBoilerplate(n) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) && sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Tr, atom.Table, atom.Section, atom.Article,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Br, atom.Dd, atom.Dt:
		return true
	}
	return false
}
