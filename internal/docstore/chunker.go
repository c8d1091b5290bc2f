package docstore

import "strings"

// Chunk is one bounded, overlapping slice of a source document. Chunks are
// immutable after ingestion; offsets are token positions in the source text.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"embedding"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
}

// splitChunks carves whitespace-token windows of size tokens with the given
// overlap. The last window may be shorter. Window boundaries depend only on
// the input text, so re-ingesting a document always produces the same chunks.
func splitChunks(text string, size, overlap int) []Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	step := size - overlap
	var chunks []Chunk
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{
			Text:        strings.Join(tokens[start:end], " "),
			StartOffset: start,
			EndOffset:   end,
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
