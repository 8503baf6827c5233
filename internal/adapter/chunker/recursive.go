package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"codeflow/internal/domain"
)

var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text into chunks of at most size characters,
// trying coarse separators first and falling back to finer ones.
// Consecutive chunks share up to overlap characters.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

func NewRecursiveChunker(size, overlap int, separators []string) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{
		size:       size,
		overlap:    overlap,
		separators: separators,
	}, nil
}

func (c *RecursiveChunker) Chunk(file domain.RepositoryFile) ([]domain.Chunk, error) {
	texts := c.SplitText(file.Content)

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:         generateChunkID(file.Path, i),
			SourcePath: file.Path,
			RelPath:    file.RelPath,
			Seq:        i,
			Text:       text,
		})
	}
	return chunks, nil
}

// ChunkAll chunks every file, keeping file order.
func (c *RecursiveChunker) ChunkAll(files []domain.RepositoryFile) ([]domain.Chunk, error) {
	var all []domain.Chunk
	for _, f := range files {
		chunks, err := c.Chunk(f)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", f.RelPath, err)
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// SplitText returns the chunk texts for text in document order.
func (c *RecursiveChunker) SplitText(text string) []string {
	return c.split(text, c.separators)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}
	return final
}

// merge joins small pieces into chunks no longer than size, carrying the
// tail of each emitted chunk into the next one as overlap.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > c.size && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator splits text on sep, attaching each separator to the
// piece that follows it. An empty sep splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func generateChunkID(path string, seq int) string {
	data := fmt.Sprintf("%s:%d", path, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
