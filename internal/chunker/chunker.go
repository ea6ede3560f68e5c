// Package chunker splits extracted document text into overlapping,
// size-bounded chunks. Sizes and overlaps are measured in characters
// (Unicode code points), never bytes, so multi-byte text is never split
// inside a character.
package chunker

import (
	"unicode"

	"github.com/google/uuid"

	"github.com/sntprz/ai-assistant/internal/rag"
)

const (
	// DefaultSize is the maximum chunk length in characters.
	DefaultSize = 1200

	// DefaultOverlap is the number of characters shared by adjacent chunks.
	DefaultOverlap = 200
)

// Chunker turns documents into chunks with a fixed size and overlap.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. It fails with rag.ErrInvalidArgument unless
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits doc.Text and stamps every piece with the document's
// identity. Seq numbers follow text order starting at zero.
func (c *Chunker) Chunk(doc rag.Document) []rag.Chunk {
	pieces := split([]rune(doc.Text), c.size, c.overlap)
	chunks := make([]rag.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, rag.Chunk{
			ID:        ChunkID(doc.Title, p),
			DocID:     doc.ID,
			Title:     doc.Title,
			Content:   p,
			Source:    doc.Source,
			CreatedAt: doc.CreatedAt,
			Seq:       i,
		})
	}
	return chunks
}

// ChunkID derives a stable identifier from the chunk's title and content.
// Re-ingesting identical text yields the same ID, so upserts replace rows
// instead of duplicating them.
func ChunkID(title, content string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(title+"-"+content)).String()
}

// Split cuts text into chunks of at most size characters where adjacent
// chunks share exactly overlap characters. Cuts prefer, in order, a
// paragraph break, a line break, a sentence end and any whitespace found in
// the back half of the window; otherwise the window is cut hard.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return split([]rune(text), size, overlap), nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return rag.Errorf(rag.ErrInvalidArgument, "chunker", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return rag.Errorf(rag.ErrInvalidArgument, "chunker", "chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return nil
}

func split(r []rune, size, overlap int) []string {
	if len(r) == 0 {
		return nil
	}
	var out []string
	start := 0
	for {
		if len(r)-start <= size {
			out = append(out, string(r[start:]))
			return out
		}
		cut := findCut(r, start, size, overlap)
		out = append(out, string(r[start:cut]))
		// cut > start+overlap, so every iteration advances.
		start = cut - overlap
	}
}

// findCut returns the exclusive end of the chunk beginning at start.
func findCut(r []rune, start, size, overlap int) int {
	end := start + size
	lo := start + max(overlap+1, size/2)

	matchers := []func(c int) bool{
		func(c int) bool { return c >= 2 && r[c-1] == '\n' && r[c-2] == '\n' },
		func(c int) bool { return r[c-1] == '\n' },
		func(c int) bool { return c >= 2 && unicode.IsSpace(r[c-1]) && isSentenceEnd(r[c-2]) },
		func(c int) bool { return unicode.IsSpace(r[c-1]) },
	}
	for _, match := range matchers {
		for c := end; c >= lo; c-- {
			if match(c) {
				return c
			}
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
