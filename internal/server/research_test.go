package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/deepresearch/internal/pipeline"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

type stubRunner struct {
	state  pipeline.ResearchState
	err    error
	query  string
	useRAG bool
	kWeb   int
	kDocs  int
}

func (s *stubRunner) Run(ctx context.Context, query string, useRAG bool, kWeb, kDocs int) (pipeline.ResearchState, error) {
	s.query, s.useRAG, s.kWeb, s.kDocs = query, useRAG, kWeb, kDocs
	return s.state, s.err
}

type stubRecords struct {
	records map[string]store.Record
	saveErr error
	saved   []pipeline.ResearchState
}

func newStubRecords() *stubRecords {
	return &stubRecords{records: make(map[string]store.Record)}
}

func (s *stubRecords) Save(ctx context.Context, state pipeline.ResearchState, metadata map[string]interface{}) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, state)
	s.records[state.ID] = store.Record{ResearchState: state, Metadata: metadata}
	return nil
}

func (s *stubRecords) Get(ctx context.Context, id string) (store.Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *stubRecords) List(ctx context.Context, skip, limit int) ([]store.Record, error) {
	var out []store.Record
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubRecords) Search(ctx context.Context, q string, limit int) ([]store.Record, error) {
	return nil, nil
}

func (s *stubRecords) Delete(ctx context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *stubRecords) Stats(ctx context.Context) (store.Stats, error) {
	return store.Stats{Total: len(s.records)}, nil
}

func newResearchHandler(runner *stubRunner, records *stubRecords) *ResearchHandler {
	return &ResearchHandler{
		Runner:       runner,
		Records:      records,
		Logger:       log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
		DefaultKWeb:  5,
		DefaultKDocs: 3,
	}
}

func postResearch(t *testing.T, h *ResearchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	if err := h.create(ctx); err != nil {
		e.HTTPErrorHandler(err, ctx)
	}
	return rec
}

func TestCreateResearchSuccess(t *testing.T) {
	runner := &stubRunner{state: pipeline.ResearchState{
		ID:          "run-1",
		Query:       "q",
		Stage:       pipeline.StageDone,
		FinalAnswer: "answer",
	}}
	records := newStubRecords()
	rec := postResearch(t, newResearchHandler(runner, records), `{"query":"q"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		ID    string `json:"id"`
		Stage string `json:"stage"`
		Saved bool   `json:"saved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stage != "done" || !resp.Saved {
		t.Fatalf("response = %+v, want done/saved", resp)
	}
	if len(records.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(records.saved))
	}
	// request defaults
	if !runner.useRAG || runner.kWeb != 5 || runner.kDocs != 3 {
		t.Fatalf("defaults not applied: rag=%v kWeb=%d kDocs=%d", runner.useRAG, runner.kWeb, runner.kDocs)
	}
}

func TestCreateResearchFailedRunStillPersisted(t *testing.T) {
	state := pipeline.ResearchState{
		ID:    "run-2",
		Query: "q",
		Stage: pipeline.StageFailed,
		Error: &pipeline.RunError{Stage: "critique", Message: "model overloaded"},
	}
	runner := &stubRunner{state: state, err: &pipeline.CritiqueError{Err: errors.New("model overloaded")}}
	records := newStubRecords()
	rec := postResearch(t, newResearchHandler(runner, records), `{"query":"q"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for pipeline failure", rec.Code)
	}
	var resp struct {
		Stage string             `json:"stage"`
		Error *pipeline.RunError `json:"error"`
		Saved bool               `json:"saved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stage != "failed" || resp.Error == nil || resp.Error.Stage != "critique" {
		t.Fatalf("response = %+v", resp)
	}
	if len(records.saved) != 1 {
		t.Fatalf("failed run must still be persisted")
	}
}

func TestCreateResearchSaveFailureReportsUnsaved(t *testing.T) {
	runner := &stubRunner{state: pipeline.ResearchState{ID: "run-3", Stage: pipeline.StageDone, FinalAnswer: "a"}}
	records := newStubRecords()
	records.saveErr = errors.New("connection refused")
	rec := postResearch(t, newResearchHandler(runner, records), `{"query":"q"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when only persistence fails", rec.Code)
	}
	var resp struct {
		FinalAnswer string `json:"final_answer"`
		Saved       bool   `json:"saved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Saved {
		t.Fatalf("saved must be false on persistence failure")
	}
	if resp.FinalAnswer != "a" {
		t.Fatalf("result must still carry the answer: %+v", resp)
	}
}

func TestCreateResearchValidation(t *testing.T) {
	rec := postResearch(t, newResearchHandler(&stubRunner{}, newStubRecords()), `{"query":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty query", rec.Code)
	}
}

func TestCreateResearchUseRAGFalsePassedThrough(t *testing.T) {
	runner := &stubRunner{state: pipeline.ResearchState{ID: "run-4", Stage: pipeline.StageDone}}
	postResearch(t, newResearchHandler(runner, newStubRecords()), `{"query":"q","use_rag":false,"k_web":2}`)
	if runner.useRAG {
		t.Fatalf("use_rag=false not passed through")
	}
	if runner.kWeb != 2 {
		t.Fatalf("kWeb = %d, want 2", runner.kWeb)
	}
}

func TestGetResearchNotFound(t *testing.T) {
	h := newResearchHandler(&stubRunner{}, newStubRecords())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/research/missing", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	err := h.get(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}

func TestDeleteResearch(t *testing.T) {
	records := newStubRecords()
	records.records["run-5"] = store.Record{ResearchState: pipeline.ResearchState{ID: "run-5"}}
	h := newResearchHandler(&stubRunner{}, records)
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/research/run-5", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("run-5")

	if err := h.delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := records.records["run-5"]; ok {
		t.Fatalf("record not deleted")
	}
}
