package llm

import (
	"fmt"
	"strings"
)

// DefaultInstructions is the system prompt shared by every provider.
const DefaultInstructions = "You are a helpful assistant that answers questions based on content from a website. " +
	"Use a friendly and professional tone. " +
	"Keep your answers clear and concise. " +
	"Only use information from the provided context. If the context does not contain the answer, say so clearly."

func renderEntry(doc ContextDocument) string {
	return fmt.Sprintf("Title: %s\nContent: %s\n\n", doc.Title, doc.Body)
}

// RenderContext formats docs as consecutive "Title/Content" entries.
func RenderContext(docs []ContextDocument) string {
	var b strings.Builder
	for _, doc := range docs {
		b.WriteString(renderEntry(doc))
	}
	return b.String()
}

// FitContext returns the leading docs whose rendered entries fit in budget
// bytes. Entries are never cut; selection stops at the first that overflows.
func FitContext(docs []ContextDocument, budget int) []ContextDocument {
	used := 0
	for i, doc := range docs {
		n := len(renderEntry(doc))
		if used+n > budget {
			return docs[:i]
		}
		used += n
	}
	return docs
}

// UserMessage is the question followed by the rendered site content.
func UserMessage(req *SynthesisRequest) string {
	return fmt.Sprintf("%s\n\nContext from our website:\n%s", req.Query, RenderContext(req.Documents))
}
