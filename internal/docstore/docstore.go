package docstore

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
)

// Embedder is the embedding capability the store depends on. The concrete
// provider is injected at construction.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Store is an in-memory vector index over document chunks: brute-force cosine
// similarity under a reader-writer lock. Ingest and Clear are writers; Search
// is a reader, so a search never observes a partially ingested document.
type Store struct {
	mu       sync.RWMutex
	embedder Embedder
	logger   *log.Logger

	chunkSize    int
	chunkOverlap int

	// chunks holds insertion order, which is the search tie-break order.
	chunks []Chunk
	norms  []float64
}

// New creates a document store with the given chunking window. overlap must be
// smaller than size.
func New(embedder Embedder, size, overlap int, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[DOCSTORE] ", log.LstdFlags)
	}
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 50
		if overlap >= size {
			overlap = 0
		}
	}
	return &Store{
		embedder:     embedder,
		logger:       logger,
		chunkSize:    size,
		chunkOverlap: overlap,
	}
}

// Ingest splits rawText into overlapping chunks, embeds them and adds them to
// the index, replacing any chunks previously stored under the same document
// id. Ingestion is atomic per document: if any embedding fails, no chunk of
// the document remains in the store.
func (s *Store) Ingest(ctx context.Context, documentID, rawText string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("document id required")
	}
	chunks := splitChunks(rawText, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s has no content", documentID)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].DocumentID = documentID
		chunks[i].ID = fmt.Sprintf("%s#%03d", documentID, i)
		texts[i] = chunks[i].Text
	}

	// Embed outside the lock; searches keep running against the old corpus.
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		s.removeDocument(documentID)
		return 0, fmt.Errorf("ingest %s: %w", documentID, err)
	}
	if len(vecs) != len(chunks) {
		s.removeDocument(documentID)
		return 0, fmt.Errorf("ingest %s: embedder returned %d vectors for %d chunks", documentID, len(vecs), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropDocumentLocked(documentID)
	for _, c := range chunks {
		s.chunks = append(s.chunks, c)
		s.norms = append(s.norms, norm(c.Embedding))
	}
	s.logger.Printf("ingested document %s: %d chunks", documentID, len(chunks))
	return len(chunks), nil
}

// Search embeds queryText and returns the top k chunks by descending cosine
// similarity. Ties go to the chunk inserted earlier. k <= 0 returns nothing;
// k beyond the corpus size returns the whole corpus ranked.
func (s *Store) Search(ctx context.Context, queryText string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vecs))
	}
	qv := vecs[0]
	qn := norm(qv)

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredChunk, len(s.chunks))
	for i := range s.chunks {
		scored[i] = ScoredChunk{Chunk: s.chunks[i], Score: cosine(qv, qn, s.chunks[i].Embedding, s.norms[i])}
	}
	// SliceStable preserves insertion order among equal scores.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	out := make([]ScoredChunk, k)
	copy(out, scored[:k])
	return out, nil
}

// Clear removes all chunks from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.norms = nil
}

// Count returns the number of chunks currently indexed.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Documents returns the number of distinct document ids in the store.
func (s *Store) Documents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, c := range s.chunks {
		seen[c.DocumentID] = struct{}{}
	}
	return len(seen)
}

func (s *Store) removeDocument(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropDocumentLocked(documentID)
}

func (s *Store) dropDocumentLocked(documentID string) {
	kept := s.chunks[:0]
	keptNorms := s.norms[:0]
	for i, c := range s.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
			keptNorms = append(keptNorms, s.norms[i])
		}
	}
	s.chunks = kept
	s.norms = keptNorms
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dot := 0.0
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
