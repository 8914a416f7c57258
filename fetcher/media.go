package fetcher

import (
	"bytes"
	"html"
	"mime"
	"net/http"
	"strings"
)

// Media types the pipeline can read.
const (
	MediaHTML = "text/html"
	MediaText = "text/plain"
	MediaPDF  = "application/pdf"
)

// mediaType returns the media type of a response body. The declared
// Content-Type wins, except that a body starting with the PDF magic is a
// PDF whatever the server says. An undeclared type is sniffed.
func mediaType(h http.Header, body []byte) string {
	if bytes.HasPrefix(body, []byte("%PDF-")) {
		return MediaPDF
	}
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "application/octet-stream"
	}
	switch mt {
	case "application/xhtml+xml", "application/xml", "text/xml":
		return MediaHTML
	}
	return mt
}

// textMarkup wraps plain text in a minimal document so it goes through the
// same extraction as HTML. Blank lines separate paragraphs.
func textMarkup(title, text string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	if title != "" {
		b.WriteString("<title>" + html.EscapeString(title) + "</title>")
	}
	b.WriteString("</head><body>")
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteString("<p>" + html.EscapeString(p) + "</p>")
		}
	}
	b.WriteString("</body></html>")
	return b.String()
}
