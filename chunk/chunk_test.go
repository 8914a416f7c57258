package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ShortText(t *testing.T) {
	text := "Hello world this is a short text."
	chunks := Split(text, Options{})
	if len(chunks) != 1 {
		t.Fatalf("split short: got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("text: got %q, want %q", chunks[0].Text, text)
	}
	if chunks[0].OverlapPrev != 0 {
		t.Errorf("overlap: got %d, want 0", chunks[0].OverlapPrev)
	}
}

func TestSplit_Empty(t *testing.T) {
	if chunks := Split("   \n\n ", Options{}); chunks != nil {
		t.Errorf("split empty: got %v, want nil", chunks)
	}
}

func TestSplit_LongParagraph(t *testing.T) {
	// WHAT: A single paragraph longer than MaxChars is windowed.
	// WHY: Extracted text from some pages has no blank lines at all.
	words := make([]string, 400)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := strings.Join(words, " ")

	chunks := Split(text, Options{MaxChars: 200, OverlapChars: 40})
	if len(chunks) < 5 {
		t.Fatalf("got %d chunks, want >= 5", len(chunks))
	}
	for i, c := range chunks {
		if c.Chars > 200 {
			t.Errorf("chunk[%d]: %d chars > 200 max", i, c.Chars)
		}
		if c.Chars != utf8.RuneCountInString(c.Text) {
			t.Errorf("chunk[%d]: Chars=%d, text has %d", i, c.Chars, utf8.RuneCountInString(c.Text))
		}
		if c.Index != i {
			t.Errorf("chunk[%d]: index=%d", i, c.Index)
		}
	}
	if chunks[0].OverlapPrev != 0 {
		t.Errorf("chunk[0]: overlap=%d, want 0", chunks[0].OverlapPrev)
	}
	last := chunks[len(chunks)-1].Text
	if !strings.HasSuffix(last, "w399") {
		t.Errorf("last chunk lost the tail: %q", last)
	}
}

func TestSplit_Overlap(t *testing.T) {
	// WHAT: Consecutive chunks share the configured overlap.
	// WHY: Overlap keeps context that straddles a boundary retrievable.
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, fmt.Sprintf("paragraph %d %s", i, strings.Repeat("lorem ipsum ", 8)))
	}
	text := strings.Join(paras, "\n\n")

	chunks := Split(text, Options{MaxChars: 300, OverlapChars: 60})
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		c := chunks[i]
		if c.OverlapPrev == 0 {
			t.Errorf("chunk[%d]: no overlap", i)
			continue
		}
		head := string([]rune(c.Text)[:c.OverlapPrev])
		if !strings.HasSuffix(chunks[i-1].Text, head) {
			t.Errorf("chunk[%d]: overlap %q is not the tail of the previous chunk", i, head)
		}
	}
}

func TestSplit_ParagraphAware(t *testing.T) {
	para1 := strings.TrimSpace(strings.Repeat("alpha ", 30))
	para2 := strings.TrimSpace(strings.Repeat("beta ", 30))
	text := para1 + "\n\n" + para2

	chunks := Split(text, Options{MaxChars: 200, OverlapChars: 20})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Text, "alpha") || strings.Contains(chunks[0].Text, "beta") {
		t.Errorf("chunk[0] should hold the first paragraph: %q", chunks[0].Text)
	}
	if !strings.HasSuffix(chunks[1].Text, para2) {
		t.Errorf("chunk[1] should end with the second paragraph: %q", chunks[1].Text)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("Some sentence here. ", 300)
	a := Split(text, Options{})
	b := Split(text, Options{})
	if len(a) != len(b) {
		t.Fatalf("len differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk[%d] differs", i)
		}
	}
}

func TestSplit_ShortRemainderMerged(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("x ", 60))
	text := big + "\n\n" + big + "\n\nend."

	chunks := Split(text, Options{MaxChars: 240, OverlapChars: 10, MinChars: 20})
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last.Text, "end.") {
		t.Errorf("remainder lost: %q", last.Text)
	}
	for i, c := range chunks {
		if c.Chars > 240 {
			t.Errorf("chunk[%d] over max: %d", i, c.Chars)
		}
	}
}

func TestSplit_DefaultOverlapSmallMax(t *testing.T) {
	// WHAT: with the default overlap, small chunk sizes still advance by
	// most of a chunk and never cut a word.
	// WHY: a fixed 200-rune overlap on a 213-rune chunk moved 12 runes at a
	// time and split words mid-way.
	vocab := []string{"supercalifragilistic", "expialidocious", "hydro", "turbine", "reservoir"}
	known := map[string]bool{}
	for _, w := range vocab {
		known[w] = true
	}
	var words []string
	for i := 0; i < 600; i++ {
		words = append(words, vocab[i%len(vocab)])
	}
	text := strings.Join(words, " ")
	total := utf8.RuneCountInString(text)

	for _, max := range []int{60, 120, 201, 213, 250, 400} {
		t.Run(fmt.Sprint(max), func(t *testing.T) {
			opts := Options{MaxChars: max}
			opts.defaults()
			if want := min(200, max/5); opts.OverlapChars != want {
				t.Fatalf("overlap = %d, want %d", opts.OverlapChars, want)
			}

			chunks := Split(text, Options{MaxChars: max})
			// Each window advances at least half of MaxChars-overlap.
			step := (max - opts.OverlapChars - 1) / 2
			if limit := total/step + 2; len(chunks) > limit {
				t.Fatalf("%d chunks, want <= %d", len(chunks), limit)
			}
			for i, c := range chunks {
				if c.Chars > max {
					t.Errorf("chunk[%d]: %d chars > %d", i, c.Chars, max)
				}
				for _, w := range strings.Fields(c.Text) {
					if !known[w] {
						t.Fatalf("chunk[%d] cuts a word: %q in %q", i, w, c.Text)
					}
				}
			}
		})
	}
}

func TestOptions_OverlapCapped(t *testing.T) {
	o := Options{MaxChars: 100, OverlapChars: 90}
	o.defaults()
	if o.OverlapChars != 50 {
		t.Errorf("overlap = %d, want 50", o.OverlapChars)
	}
}
