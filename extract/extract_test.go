package extract

import (
	"errors"
	"strings"
	"testing"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>  Test Page </title><style>body{color:red}</style></head>
<body>
<header><a href="/">Home</a></header>
<nav><ul><li>Menu item</li></ul></nav>
<main>
<h1>Article Title</h1>
<p>First paragraph with <b>bold</b> text.</p>
<script>var tracking = "do not index";</script>
<div class="content"><p>Second paragraph   spans
several lines.</p></div>
<div class="content"><p>Third paragraph.</p></div>
</main>
<footer>Copyright</footer>
</body>
</html>`

func TestExtract_Body(t *testing.T) {
	// WHAT: Without a selector the body is reduced to clean paragraphs.
	// WHY: Script, style and navigation must never reach the analyzer.
	res, err := New().Extract(articlePage, "", "https://example.com/a")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Title != "Test Page" {
		t.Errorf("title: got %q", res.Title)
	}
	want := "Article Title\n\nFirst paragraph with bold text.\n\nSecond paragraph spans several lines.\n\nThird paragraph."
	if res.Text != want {
		t.Errorf("text:\n got %q\nwant %q", res.Text, want)
	}
	for _, banned := range []string{"tracking", "color:red", "Menu item", "Copyright", "Home"} {
		if strings.Contains(res.Text, banned) {
			t.Errorf("text contains boilerplate %q", banned)
		}
	}
	if res.Hash == "" || len(res.Hash) != 64 {
		t.Errorf("hash: %q", res.Hash)
	}
	if strings.Contains(res.HTML, "<script") {
		t.Error("sanitized HTML still has a script tag")
	}
	if !strings.Contains(res.Markdown, "Article Title") {
		t.Errorf("markdown: %q", res.Markdown)
	}
}

func TestExtract_Selector(t *testing.T) {
	// WHAT: A selector keeps only matching elements, in document order.
	res, err := New().Extract(articlePage, ".content", "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "Second paragraph spans several lines.\n\nThird paragraph."
	if res.Text != want {
		t.Errorf("text: got %q, want %q", res.Text, want)
	}
}

func TestExtract_NestedMatchesNotDuplicated(t *testing.T) {
	page := `<html><body><div class="x">outer <div class="x">inner</div></div></body></html>`
	res, err := New().Extract(page, ".x", "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if strings.Count(res.Text, "inner") != 1 {
		t.Errorf("inner text duplicated: %q", res.Text)
	}
}

func TestExtract_SelectorUnmatched(t *testing.T) {
	// WHAT: An unmatched selector is an extraction failure naming the selector.
	// WHY: Callers must tell it apart from a fetch failure.
	_, err := New().Extract(articlePage, ".nonexistent", "")
	if !errors.Is(err, ErrExtractionEmpty) {
		t.Fatalf("expected ErrExtractionEmpty, got %v", err)
	}
	var ee *EmptyError
	if !errors.As(err, &ee) || !ee.Scoped() {
		t.Fatalf("expected scoped EmptyError, got %v", err)
	}
	if !strings.Contains(err.Error(), ".nonexistent") {
		t.Errorf("message should name the selector: %q", err.Error())
	}
}

func TestExtract_InvalidSelector(t *testing.T) {
	_, err := New().Extract(articlePage, "div[[", "")
	var ee *EmptyError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmptyError, got %v", err)
	}
	if !strings.Contains(ee.Reason, "not a valid") {
		t.Errorf("reason: %q", ee.Reason)
	}
}

func TestExtract_EmptyPage(t *testing.T) {
	_, err := New().Extract(`<html><body><script>x()</script></body></html>`, "", "")
	var ee *EmptyError
	if !errors.As(err, &ee) || ee.Scoped() {
		t.Fatalf("expected unscoped EmptyError, got %v", err)
	}
}

func TestExtract_SelectedBoilerplateKept(t *testing.T) {
	// WHAT: Selecting a boilerplate element explicitly keeps its text.
	page := `<html><body><nav>Docs Blog</nav><p>x</p></body></html>`
	res, err := New().Extract(page, "nav", "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Text != "Docs Blog" {
		t.Errorf("text: %q", res.Text)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello   world  ", "hello world"},
		{"a\n\n\tb", "a b"},
		{"zero\u200bwidth", "zerowidth"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
