package chat

import (
	"strings"

	"github.com/hazyhaar/scrapeall/index"
	"github.com/hazyhaar/scrapeall/store"
)

const systemPrompt = `You are a helpful assistant that answers questions about scraped web content.
Use the provided context to answer questions accurately. If the answer is not in the context, say so.
Be concise but informative.`

func userPrompt(hits []index.Hit, past []*store.ChatMessage, question string) string {
	var b strings.Builder
	b.WriteString("Context from scraped content:\n")
	if len(hits) == 0 {
		b.WriteString("No relevant content found.\n")
	}
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(h.Text)
		b.WriteString("\n")
	}

	b.WriteString("\nPrevious conversation:\n")
	for _, m := range past {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	b.WriteString("\nUser question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
