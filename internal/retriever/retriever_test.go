package retriever

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/internal/docstore"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

type stubWeb struct {
	results []models.Result
	err     error
	calls   int
}

func (s *stubWeb) Search(context.Context, string, int) ([]models.Result, error) {
	s.calls++
	return s.results, s.err
}

type stubDocs struct {
	results []docstore.ScoredChunk
	err     error
	calls   int
}

func (s *stubDocs) Search(context.Context, string, int) ([]docstore.ScoredChunk, error) {
	s.calls++
	return s.results, s.err
}

func chunk(id string, score float64) docstore.ScoredChunk {
	return docstore.ScoredChunk{
		Chunk: docstore.Chunk{ID: id, DocumentID: "doc", Text: "text of " + id},
		Score: score,
	}
}

func TestRetrieveMergesAndRanks(t *testing.T) {
	web := &stubWeb{results: []models.Result{
		{Title: "first", URL: "https://a.example", Snippet: "a"},
		{Title: "second", URL: "https://b.example", Snippet: "b"},
	}}
	docs := &stubDocs{results: []docstore.ScoredChunk{
		chunk("d#000", 0.9),
		chunk("d#001", 0.4),
	}}

	res := NewHybrid(web, docs, nil).Retrieve(context.Background(), "q", 2, 2)
	if res.WebFailed || res.DocsFailed {
		t.Fatalf("no source should be marked failed")
	}
	// Expected scores: web = 1.0, 0.5; docs = 0.9, 0.4.
	wantLocators := []string{"https://a.example", "d#000", "https://b.example", "d#001"}
	var got []string
	for _, item := range res.Items {
		got = append(got, item.Locator)
	}
	if !reflect.DeepEqual(got, wantLocators) {
		t.Fatalf("merged order = %v, want %v", got, wantLocators)
	}
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i-1].Score < res.Items[i].Score {
			t.Fatalf("scores not non-increasing at %d", i)
		}
	}
}

func TestRetrieveDocumentWinsTies(t *testing.T) {
	web := &stubWeb{results: []models.Result{
		{Title: "tied", URL: "https://tie.example", Snippet: "tie"},
	}}
	docs := &stubDocs{results: []docstore.ScoredChunk{
		chunk("d#000", 1.0), // same score as web rank 0
	}}

	res := NewHybrid(web, docs, nil).Retrieve(context.Background(), "q", 1, 1)
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[0].Source != SourceDocument {
		t.Fatalf("document evidence should win the tie, got %s", res.Items[0].Source)
	}
}

func TestRetrieveStableOrdering(t *testing.T) {
	web := &stubWeb{results: []models.Result{
		{URL: "https://a.example"}, {URL: "https://b.example"}, {URL: "https://c.example"},
	}}
	docs := &stubDocs{results: []docstore.ScoredChunk{
		chunk("d#000", 0.7), chunk("d#001", 0.7),
	}}

	h := NewHybrid(web, docs, nil)
	first := h.Retrieve(context.Background(), "q", 3, 2)
	second := h.Retrieve(context.Background(), "q", 3, 2)
	if !reflect.DeepEqual(first.Items, second.Items) {
		t.Fatalf("identical inputs produced different orderings")
	}
	if first.Items[1].Locator != "d#000" || first.Items[2].Locator != "d#001" {
		t.Fatalf("equal-score documents should keep insertion order: %v", first.Items)
	}
}

func TestRetrieveDegradesPerSource(t *testing.T) {
	web := &stubWeb{err: errors.New("search provider down")}
	docs := &stubDocs{results: []docstore.ScoredChunk{
		chunk("d#000", 0.8), chunk("d#001", 0.6), chunk("d#002", 0.5),
	}}

	res := NewHybrid(web, docs, nil).Retrieve(context.Background(), "q", 5, 3)
	if !res.WebFailed || res.DocsFailed {
		t.Fatalf("expected only web marked failed: %+v", res)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected the 3 document items, got %d", len(res.Items))
	}
	for _, item := range res.Items {
		if item.Source != SourceDocument {
			t.Fatalf("unexpected web item %v after web failure", item)
		}
	}
}

func TestRetrieveBothFailedReturnsEmpty(t *testing.T) {
	web := &stubWeb{err: errors.New("down")}
	docs := &stubDocs{err: errors.New("also down")}

	res := NewHybrid(web, docs, nil).Retrieve(context.Background(), "q", 3, 3)
	if len(res.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(res.Items))
	}
	if !res.WebFailed || !res.DocsFailed {
		t.Fatalf("both sources should be marked failed")
	}
}

func TestRetrieveSkipsDocsWhenKZero(t *testing.T) {
	web := &stubWeb{results: []models.Result{{URL: "https://a.example"}}}
	docs := &stubDocs{results: []docstore.ScoredChunk{chunk("d#000", 0.9)}}

	res := NewHybrid(web, docs, nil).Retrieve(context.Background(), "q", 1, 0)
	if docs.calls != 0 {
		t.Fatalf("document store should not be queried when kDocs=0")
	}
	if len(res.Items) != 1 || res.Items[0].Source != SourceWeb {
		t.Fatalf("expected single web item, got %v", res.Items)
	}
}
