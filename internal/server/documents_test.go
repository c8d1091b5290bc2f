package server

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/deepresearch/internal/docstore"
	fetchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
)

type bagEmbedder struct{}

func (bagEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 32)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%32]++
		}
		out[i] = vec
	}
	return out, nil
}

type stubFetcher struct {
	page fetchmodels.Result
	err  error
	url  string
}

func (s *stubFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	s.url = url
	return s.page, s.err
}

func newDocumentsHandler(fetcher *stubFetcher) *DocumentsHandler {
	docs := docstore.New(bagEmbedder{}, 50, 5, log.New(log.Writer(), "[DOCSTORE] ", log.LstdFlags))
	return &DocumentsHandler{
		Docs:    docs,
		Fetcher: fetcher,
		Logger:  log.New(log.Writer(), "[DOCUMENTS] ", log.LstdFlags),
	}
}

func postDocuments(t *testing.T, h *DocumentsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	if err := h.ingest(ctx); err != nil {
		e.HTTPErrorHandler(err, ctx)
	}
	return rec
}

func TestIngestText(t *testing.T) {
	h := newDocumentsHandler(&stubFetcher{})
	rec := postDocuments(t, h, `{"document_id":"notes","text":"go concurrency patterns with channels"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		DocumentID string `json:"document_id"`
		Chunks     int    `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DocumentID != "notes" || resp.Chunks != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if h.Docs.Documents() != 1 {
		t.Fatalf("documents = %d, want 1", h.Docs.Documents())
	}
}

func TestIngestURL(t *testing.T) {
	fetcher := &stubFetcher{page: fetchmodels.Result{
		URL:   "https://example.com/post",
		Title: "Post",
		Text:  "extracted article body about distributed consensus",
	}}
	h := newDocumentsHandler(fetcher)
	rec := postDocuments(t, h, `{"url":"https://example.com/post"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if fetcher.url != "https://example.com/post" {
		t.Fatalf("fetcher called with %q", fetcher.url)
	}
	var resp struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DocumentID != "https://example.com/post" {
		t.Fatalf("document id = %q, want the url", resp.DocumentID)
	}
}

func TestIngestURLFetchFailure(t *testing.T) {
	h := newDocumentsHandler(&stubFetcher{err: errors.New("tls handshake timeout")})
	rec := postDocuments(t, h, `{"url":"https://example.com"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestIngestValidation(t *testing.T) {
	h := newDocumentsHandler(&stubFetcher{})
	rec := postDocuments(t, h, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestClearAndStats(t *testing.T) {
	h := newDocumentsHandler(&stubFetcher{})
	postDocuments(t, h, `{"document_id":"a","text":"some text here"}`)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/stats", nil)
	rec := httptest.NewRecorder()
	if err := h.stats(e.NewContext(req, rec)); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["documents"] != 1 || stats["chunks"] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/documents", nil)
	rec = httptest.NewRecorder()
	if err := h.clear(e.NewContext(req, rec)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if h.Docs.Count() != 0 {
		t.Fatalf("chunks remain after clear")
	}
}
