package docs

import "fmt"

// Chunk is one window of a document. Index is the chunk's position in
// document order.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Chunker splits text into fixed-size overlapping windows measured in runes.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker with window size and overlap. overlap must be
// non-negative and smaller than size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the chunks of text in document order. Each window starts
// size-overlap runes after the previous one; the last window ends at the end
// of the text and may be shorter than size. Empty text yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; ; start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Texts returns the text of each chunk.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
