package fetcher

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Verdict is the outcome of Assess.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictEmpty
	VerdictShell
	VerdictBlocked
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictEmpty:
		return "empty"
	case VerdictShell:
		return "shell"
	case VerdictBlocked:
		return "blocked"
	}
	return "unknown"
}

// Assessment thresholds, in bytes of non-whitespace visible text.
const (
	minVisibleText = 16
	shellTextLimit = 200
	// Challenge pages are short; a long article that mentions "captcha" is not one.
	challengeTextLimit = 3000
)

var spaIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

var challengeSignatures = []string{
	"just a moment...",
	"cf-browser-verification",
	"cf-challenge",
	"challenge-platform",
	"attention required! | cloudflare",
	"checking your browser",
	"enable javascript and cookies to continue",
	"please verify you are a human",
	"g-recaptcha",
	"h-captcha",
	"px-captcha",
	"ddos protection by",
	"<title>access denied</title>",
}

// Assess classifies markup. Anything but VerdictOK means a more capable
// strategy may do better.
func Assess(markup string) Verdict {
	text := visibleTextLen(markup)
	lower := strings.ToLower(markup)

	if text < challengeTextLimit {
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return VerdictBlocked
			}
		}
	}
	if text < shellTextLimit {
		for _, ind := range spaIndicators {
			if strings.Contains(lower, ind) {
				return VerdictShell
			}
		}
	}
	if text < minVisibleText {
		return VerdictEmpty
	}
	return VerdictOK
}

// visibleTextLen counts non-whitespace text bytes outside script, style,
// noscript and template elements.
func visibleTextLen(markup string) int {
	z := html.NewTokenizer(strings.NewReader(markup))
	skip := 0
	n := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail: either way the count is final.
			return n
		case html.StartTagToken:
			name, _ := z.TagName()
			if isInvisible(atom.Lookup(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isInvisible(atom.Lookup(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				n += len(bytes.Join(bytes.Fields(z.Text()), nil))
			}
		}
	}
}

func isInvisible(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Title:
		return true
	}
	return false
}
