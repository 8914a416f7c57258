package fetcher

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfMarkup extracts the text of a PDF body. Each page becomes a
// paragraph block; the first non-empty line is the title.
func pdfMarkup(body []byte) (string, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(body), model.NewDefaultConfiguration())
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var pages []string
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil || r == nil {
			continue
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if text := streamText(stream); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdf has %d pages and no extractable text", ctx.PageCount)
	}

	title, _, _ := strings.Cut(pages[0], "\n")
	if r := []rune(strings.TrimSpace(title)); len(r) > 200 {
		title = string(r[:200])
	}
	return textMarkup(strings.TrimSpace(title), strings.Join(pages, "\n\n")), nil
}

// streamText collects the strings shown by a page content stream. Text
// operators (Tj, TJ, ', ") contribute their literals; line moves (Td, TD,
// T*, ') become line breaks. Hex strings and font encodings are ignored.
func streamText(stream []byte) string {
	var (
		b       strings.Builder
		pending []string
	)
	flushLine := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '(':
			s, n := pdfLiteral(stream[i:])
			pending = append(pending, s)
			i += n
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isPDFDelimiter(c) || unicode.IsSpace(rune(c)):
			i++
		default:
			start := i
			for i < len(stream) && !isPDFDelimiter(stream[i]) && !unicode.IsSpace(rune(stream[i])) {
				i++
			}
			switch string(stream[start:i]) {
			case "Tj", "TJ":
				b.WriteString(strings.Join(pending, ""))
			case "'", `"`:
				flushLine()
				b.WriteString(strings.Join(pending, ""))
			case "Td", "TD", "T*":
				flushLine()
			}
			if op := string(stream[start:i]); isPDFOperator(op) {
				pending = pending[:0]
			}
		}
	}
	return cleanLines(b.String())
}

// pdfLiteral decodes the string literal at the start of s, with nested
// parentheses and escapes. It returns the text and the bytes consumed.
func pdfLiteral(s []byte) (string, int) {
	var (
		b     strings.Builder
		depth int
		i     int
	)
	for i = 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r', 't':
				b.WriteByte(' ')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v, j := 0, 0
					for j < 3 && i < len(s) && s[i] >= '0' && s[i] <= '7' {
						v = v*8 + int(s[i]-'0')
						i++
						j++
					}
					i--
					b.WriteByte(byte(v))
				} else {
					b.WriteByte(e)
				}
			}
		case c == '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}

func isPDFDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/", c) >= 0
}

// isPDFOperator reports whether tok is an operator rather than an operand.
func isPDFOperator(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c != '-' && c != '+' && c != '.' && (c < '0' || c > '9')
}

// cleanLines keeps printable runes, collapses blanks inside a line and
// drops empty lines.
func cleanLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			if !unicode.IsPrint(r) {
				return -1
			}
			return r
		}, line)
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
