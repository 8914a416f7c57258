package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// collectBlocks walks a subtree and returns its visible text as cleaned
// paragraphs in document order. Block-level elements start a new paragraph.
// Boilerplate below root is skipped; root itself is always kept.
func collectBlocks(root *html.Node) []string {
	var paras []string
	var line strings.Builder

	flush := func() {
		t := CleanText(line.String())
		line.Reset()
		if t != "" {
			paras = append(paras, t)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			line.WriteString(n.Data)
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if isSkipped(n.DataAtom) {
				return
			}
			if n != root && isBoilerplate(n) {
				return
			}
		}

		block := n.Type == html.ElementNode && isBlock(n.DataAtom)
		if block {
			flush()
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			flush()
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th) {
			line.WriteByte(' ')
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()
	return paras
}

// isSkipped reports elements whose content is never visible text.
func isSkipped(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template,
		atom.Svg, atom.Iframe, atom.Head, atom.Object, atom.Canvas:
		return true
	}
	return false
}

// isBlock returns true for elements that break the text flow.
func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Html, atom.Body, atom.Main, atom.Article, atom.Section, atom.Div, atom.P,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Li,
		atom.Table, atom.Tr, atom.Dl, atom.Dd, atom.Dt,
		atom.Figure, atom.Figcaption, atom.Details, atom.Summary,
		atom.Header, atom.Footer, atom.Address, atom.Hr, atom.Fieldset:
		return true
	}
	return false
}

// isBoilerplate checks if a node is navigation or page chrome.
func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Header, atom.Aside, atom.Form:
		return true
	}
	for _, attr := range n.Attr {
		if attr.Key == "role" {
			switch attr.Val {
			case "navigation", "banner", "contentinfo":
				return true
			}
		}
		if attr.Key == "aria-hidden" && attr.Val == "true" {
			return true
		}
	}
	return false
}

// CleanText normalises extracted text for storage and search.
// It collapses whitespace, removes zero-width characters, and trims.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
}

var multiSpaceRe = regexp.MustCompile(`\s+`)
