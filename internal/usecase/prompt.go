package usecase

import (
	"strings"

	"codeflow/internal/domain"
)

// BuildContext renders retrieved chunks as "File: <path>" blocks separated
// by blank lines.
func BuildContext(chunks []domain.ScoredChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = "File: " + c.Chunk.SourcePath + "\n" + c.Chunk.Text
	}
	return strings.Join(blocks, "\n\n")
}

// BuildUserPrompt wraps the context block and the question into the user message.
func BuildUserPrompt(context, query string) string {
	var b strings.Builder
	b.WriteString("\nHere are relevant chunks from the codebase:\n\n")
	b.WriteString(context)
	b.WriteString("\n\nBased on these code excerpts, please answer the following question:\n\n")
	b.WriteString(query)
	b.WriteString("\n")
	return b.String()
}
