// CLAUDE:SUMMARY Splits extracted page text into overlapping, paragraph-aware, fixed-size character windows for retrieval indexing.
// Package chunk splits extracted text into overlapping chunks suitable for
// retrieval indexing.
//
// Splitting strategy:
//  1. Split on paragraph boundaries (blank lines)
//  2. Pack whole paragraphs into a chunk while it stays under MaxChars
//  3. Split paragraphs longer than MaxChars with a sliding window, cutting on
//     word boundaries where possible
//  4. Seed each new chunk with the tail of the previous one (OverlapChars)
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options configures the chunking behaviour. Sizes are in runes.
type Options struct {
	// MaxChars is the maximum chunk length. Default: 1000.
	MaxChars int `yaml:"max_chars"`
	// OverlapChars is how much of the previous chunk is repeated, at most
	// half of MaxChars. Default: MaxChars/5, capped at 200.
	OverlapChars int `yaml:"overlap_chars"`
	// MinChars is the minimum chunk length; a shorter trailing chunk is
	// merged into its predecessor when it fits. Default: 50.
	MinChars int `yaml:"min_chars"`
}

func (o *Options) defaults() {
	if o.MaxChars <= 0 {
		o.MaxChars = 1000
	}
	switch {
	case o.OverlapChars <= 0:
		o.OverlapChars = min(200, o.MaxChars/5)
	case o.OverlapChars > o.MaxChars/2:
		// Past half a chunk each window would mostly repeat the last one.
		o.OverlapChars = o.MaxChars / 2
	}
	if o.MinChars <= 0 {
		o.MinChars = 50
	}
}

// Chunk is one text fragment with metadata.
type Chunk struct {
	Index       int    // 0-based position in the sequence
	Text        string // chunk text content
	Chars       int    // rune count of Text
	OverlapPrev int    // runes shared with the end of the previous chunk
}

// Split divides text into overlapping chunks. It is deterministic.
func Split(text string, opts Options) []Chunk {
	opts.defaults()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) <= opts.MaxChars {
		return []Chunk{{Index: 0, Text: text, Chars: utf8.RuneCountInString(text)}}
	}

	var chunks []Chunk
	var cur strings.Builder
	curLen := 0
	seeded := 0

	emit := func() {
		t := strings.TrimSpace(cur.String())
		cur.Reset()
		curLen = 0
		if t == "" || utf8.RuneCountInString(t) <= seeded {
			seeded = 0
			return
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Text:        t,
			Chars:       utf8.RuneCountInString(t),
			OverlapPrev: seeded,
		})
		seeded = 0
	}

	// seed starts a new chunk with the tail of the last emitted one, leaving
	// room for the next piece.
	seed := func(room int) {
		if len(chunks) == 0 || room <= 0 {
			return
		}
		n := opts.OverlapChars
		if n > room {
			n = room
		}
		tail := wordTail(chunks[len(chunks)-1].Text, n)
		if tail == "" {
			return
		}
		cur.WriteString(tail)
		curLen = utf8.RuneCountInString(tail)
		seeded = curLen
	}

	for _, para := range paragraphs(text) {
		pl := utf8.RuneCountInString(para)

		if pl > opts.MaxChars {
			emit()
			for _, piece := range window(para, opts) {
				seed(opts.MaxChars - utf8.RuneCountInString(piece) - 1)
				if curLen > 0 {
					cur.WriteString(" ")
					curLen++
				}
				cur.WriteString(piece)
				curLen += utf8.RuneCountInString(piece)
				emit()
			}
			continue
		}

		sep := 0
		if curLen > 0 {
			sep = 2
		}
		if curLen+sep+pl > opts.MaxChars {
			emit()
			seed(opts.MaxChars - pl - 2)
			sep = 0
			if curLen > 0 {
				sep = 2
			}
		}
		if sep > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
		curLen += sep + pl
	}

	// A short remainder is folded into the previous chunk when it fits.
	if curLen > 0 && curLen-seeded < opts.MinChars && len(chunks) > 0 {
		rest := strings.TrimSpace(cur.String())
		rest = strings.TrimSpace(string([]rune(rest)[min(seeded, utf8.RuneCountInString(rest)):]))
		prev := &chunks[len(chunks)-1]
		if rest != "" && prev.Chars+2+utf8.RuneCountInString(rest) <= opts.MaxChars {
			prev.Text += "\n\n" + rest
			prev.Chars = utf8.RuneCountInString(prev.Text)
			return chunks
		}
	}
	emit()

	return chunks
}

// window cuts an oversized paragraph into pieces of at most MaxChars minus
// the overlap budget, breaking on whitespace when one is close enough.
func window(para string, opts Options) []string {
	runes := []rune(para)
	size := opts.MaxChars - opts.OverlapChars - 1
	if size <= 0 {
		size = opts.MaxChars
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}
		// Prefer a word boundary in the second half of the window.
		cut := end
		for i := end; i > start+size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[start:cut])))
		start = cut
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return pieces
}

// wordTail returns at most n trailing runes of s, starting on a word
// boundary. It is empty when those runes hold no whole word.
func wordTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	start := len(runes) - n
	if unicode.IsSpace(runes[start-1]) {
		return strings.TrimSpace(string(runes[start:]))
	}
	for i := start; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimSpace(string(runes[i:]))
		}
	}
	return ""
}

// paragraphs splits on blank lines and drops empty parts.
func paragraphs(text string) []string {
	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
