package retriever

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/deepresearch/internal/docstore"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// Evidence source kinds.
const (
	SourceWeb      = "web"
	SourceDocument = "document"
)

// EvidenceItem is one retrieved unit of information, identified by
// (Source, Locator), with a score comparable across sources.
type EvidenceItem struct {
	Source  string  `json:"source"`
	Locator string  `json:"locator"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// WebSearcher mirrors tools/web_search.WebSearcher; declared here so tests can
// stub it without touching provider packages.
type WebSearcher interface {
	Search(ctx context.Context, q string, k int) ([]models.Result, error)
}

// DocumentSearcher is the slice of the document store the retriever uses.
type DocumentSearcher interface {
	Search(ctx context.Context, queryText string, k int) ([]docstore.ScoredChunk, error)
}

// Result carries the merged evidence plus per-source failure flags so the
// caller can report degraded grounding.
type Result struct {
	Items      []EvidenceItem
	WebFailed  bool
	DocsFailed bool
}

// Hybrid merges web search results and document store chunks into one ranked
// evidence set. Either source may be nil (not configured).
type Hybrid struct {
	Web    WebSearcher
	Docs   DocumentSearcher
	Logger *log.Logger
}

func NewHybrid(web WebSearcher, docs DocumentSearcher, logger *log.Logger) *Hybrid {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags)
	}
	return &Hybrid{Web: web, Docs: docs, Logger: logger}
}

// Retrieve queries both sources concurrently and merges their results onto a
// single ranking scale. Web results are scored by inverse rank (1/(rank+1),
// rank zero-based), document results keep their cosine similarity; both land
// in (0, 1] so the merged sort is meaningful. Equal scores rank
// document-sourced evidence ahead of web-sourced evidence. A failing source
// degrades the result, it never fails the call.
func (h *Hybrid) Retrieve(ctx context.Context, query string, kWeb, kDocs int) Result {
	var (
		wg         sync.WaitGroup
		webResults []models.Result
		docResults []docstore.ScoredChunk
		webErr     error
		docErr     error
	)

	if h.Web != nil && kWeb > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			webResults, webErr = h.Web.Search(ctx, query, kWeb)
		}()
	}
	if h.Docs != nil && kDocs > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docResults, docErr = h.Docs.Search(ctx, query, kDocs)
		}()
	}
	wg.Wait()

	if webErr != nil {
		h.Logger.Printf("web search degraded: %v", webErr)
	}
	if docErr != nil {
		h.Logger.Printf("document search degraded: %v", docErr)
	}

	// Documents first so equal-score ties resolve in their favor under a
	// stable sort.
	items := make([]EvidenceItem, 0, len(docResults)+len(webResults))
	for _, r := range docResults {
		items = append(items, EvidenceItem{
			Source:  SourceDocument,
			Locator: r.Chunk.ID,
			Snippet: r.Chunk.Text,
			Score:   r.Score,
		})
	}
	for rank, r := range webResults {
		items = append(items, EvidenceItem{
			Source:  SourceWeb,
			Locator: r.URL,
			Title:   r.Title,
			Snippet: r.Snippet,
			Score:   1.0 / float64(rank+1),
		})
	}

	items = dedupe(items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })

	return Result{
		Items:      items,
		WebFailed:  webErr != nil,
		DocsFailed: docErr != nil,
	}
}

func dedupe(items []EvidenceItem) []EvidenceItem {
	seen := make(map[[2]string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		key := [2]string{item.Source, item.Locator}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
