// CLAUDE:SUMMARY Reduces raw page markup to clean document-ordered text, honouring an optional CSS scope selector; also yields sanitized HTML and markdown.
// Package extract reduces raw markup to clean text.
//
// The pipeline: raw HTML → parse → select scope (CSS selector or <body>) →
// strip script/style/boilerplate → collect text in document order → clean.
// The scoped markup is also sanitized and rendered to markdown for export.
package extract

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Result is the output of content extraction.
type Result struct {
	Text     string // clean extracted text, paragraphs separated by blank lines
	Title    string // page <title>, if any
	HTML     string // sanitized scoped markup
	Markdown string // markdown rendition of HTML; falls back to Text
	Hash     string // SHA-256 of Text
}

// Extractor turns raw markup into a Result. It is safe for concurrent use.
type Extractor struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{
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

// Extract reduces raw markup to clean text. When selector is non-empty only
// the matching elements are kept, in document order. A selector matching
// nothing returns an *EmptyError; so does a page with no visible text.
// pageURL, if set, is used to resolve relative links in the markdown.
func (e *Extractor) Extract(raw, selector, pageURL string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("extract: parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var scope []*html.Node
	selector = strings.TrimSpace(selector)
	if selector != "" {
		m, err := cascadia.Compile(selector)
		if err != nil {
			return nil, &EmptyError{Selector: selector, Reason: "is not a valid CSS selector: " + err.Error()}
		}
		scope = doc.FindMatcher(m).Nodes
		if len(scope) == 0 {
			return nil, &EmptyError{Selector: selector, Reason: "matched no elements"}
		}
		scope = outermost(scope)
	} else {
		scope = doc.Find("body").Nodes
		if len(scope) == 0 {
			scope = doc.Nodes
		}
	}

	var paras []string
	var rendered []string
	for _, n := range scope {
		paras = append(paras, collectBlocks(n)...)
		rendered = append(rendered, renderNode(n))
	}

	text := strings.Join(paras, "\n\n")
	if text == "" {
		reason := "matched elements with no text"
		if selector == "" {
			reason = ""
		}
		return nil, &EmptyError{Selector: selector, Reason: reason}
	}

	res := &Result{
		Text:  text,
		Title: title,
		HTML:  strings.TrimSpace(e.policy.Sanitize(strings.Join(rendered, "\n"))),
		Hash:  hashText(text),
	}
	res.Markdown = e.toMarkdown(res.HTML, pageURL, text)
	return res, nil
}

// toMarkdown converts sanitized HTML to markdown.
// If conversion fails or produces empty output, returns the fallback text.
func (e *Extractor) toMarkdown(h, pageURL, fallback string) string {
	if h == "" {
		return fallback
	}
	var opts []converter.ConvertOptionFunc
	if pageURL != "" {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	out, err := e.md.ConvertString(h, opts...)
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return strings.TrimSpace(out)
}

// outermost drops nodes nested inside another matched node so overlapping
// matches do not duplicate text.
func outermost(nodes []*html.Node) []*html.Node {
	set := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if set[p] {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

// hashText returns the SHA-256 hex digest of text.
func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}

// renderNode serialises an HTML node subtree back to a string.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}
