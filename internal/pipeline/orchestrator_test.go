package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/internal/retriever"
)

// scriptedLLM returns canned responses in call order, failing at failAt
// (1-based) when set.
type scriptedLLM struct {
	responses []string
	failAt    int
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return "", errors.New("model overloaded")
	}
	if s.calls > len(s.responses) {
		return "", errors.New("no scripted response")
	}
	return s.responses[s.calls-1], nil
}

type stubRetriever struct {
	result retriever.Result
	calls  int
	kWeb   int
	kDocs  int
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, kWeb, kDocs int) retriever.Result {
	s.calls++
	s.kWeb, s.kDocs = kWeb, kDocs
	return s.result
}

func happyResponses() []string {
	return []string{
		"- survey the field\n- compare approaches\n- assess tradeoffs",
		"## Findings\nDetailed synthesis of the evidence.",
		"The research is solid overall.\nGAP: no benchmark numbers\nGAP: vendor claims unverified",
		"# Executive Summary\nA clear final answer.\n## Key Findings\n- one",
	}
}

func webItem(rank int, score float64) retriever.EvidenceItem {
	return retriever.EvidenceItem{
		Source:  retriever.SourceWeb,
		Locator: "https://example.com/" + strings.Repeat("a", rank+1),
		Title:   "web result",
		Snippet: "snippet",
		Score:   score,
	}
}

func docItem(id string, score float64) retriever.EvidenceItem {
	return retriever.EvidenceItem{
		Source:  retriever.SourceDocument,
		Locator: id,
		Title:   id,
		Snippet: "chunk text",
		Score:   score,
	}
}

func TestRunHappyPath(t *testing.T) {
	llm := &scriptedLLM{responses: happyResponses()}
	retr := &stubRetriever{result: retriever.Result{Items: []retriever.EvidenceItem{webItem(0, 1.0), docItem("d#000", 0.8)}}}
	orch := NewOrchestrator(llm, retr, Options{})

	state, err := orch.Run(context.Background(), "state of vector databases", true, 5, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Stage != StageDone {
		t.Fatalf("stage = %s, want done", state.Stage)
	}
	if len(state.Plan) != 3 {
		t.Fatalf("plan = %v, want 3 steps", state.Plan)
	}
	if state.FinalAnswer == "" || state.FinalAnswer == state.Findings {
		t.Fatalf("final answer must be non-empty and distinct from findings")
	}
	if state.Grounding != GroundingFull {
		t.Fatalf("grounding = %s, want full", state.Grounding)
	}
	if len(state.Gaps) != 2 {
		t.Fatalf("gaps = %v, want 2", state.Gaps)
	}
	if strings.Contains(state.Critique, "GAP:") {
		t.Fatalf("critique should not retain GAP lines: %q", state.Critique)
	}
	if state.Error != nil {
		t.Fatalf("unexpected error on done state: %+v", state.Error)
	}
	if llm.calls != 4 {
		t.Fatalf("llm calls = %d, want 4", llm.calls)
	}
}

func TestRunCritiqueFailure(t *testing.T) {
	llm := &scriptedLLM{responses: happyResponses(), failAt: 3}
	retr := &stubRetriever{}
	orch := NewOrchestrator(llm, retr, Options{})

	state, err := orch.Run(context.Background(), "q", true, 5, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CritiqueError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T, want *CritiqueError", err)
	}
	if state.Stage != StageFailed {
		t.Fatalf("stage = %s, want failed", state.Stage)
	}
	if state.Error == nil || state.Error.Stage != "critique" {
		t.Fatalf("error marker = %+v, want stage critique", state.Error)
	}
	if state.FinalAnswer != "" {
		t.Fatalf("final answer must stay unset on failure")
	}
	// earlier stage output survives for inspection
	if state.Findings == "" {
		t.Fatalf("findings should be preserved on later-stage failure")
	}
}

func TestRunPlanParseFailure(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"   \n\n  "}}
	orch := NewOrchestrator(llm, &stubRetriever{}, Options{})

	state, err := orch.Run(context.Background(), "q", true, 5, 3)
	var pe *PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *PlanningError", err)
	}
	if state.Error == nil || state.Error.Stage != "plan" {
		t.Fatalf("error marker = %+v, want stage plan", state.Error)
	}
}

func TestRunUseRAGFalseForcesKDocsZero(t *testing.T) {
	llm := &scriptedLLM{responses: happyResponses()}
	retr := &stubRetriever{result: retriever.Result{Items: []retriever.EvidenceItem{webItem(0, 1.0)}}}
	orch := NewOrchestrator(llm, retr, Options{})

	state, err := orch.Run(context.Background(), "q", false, 5, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if retr.kDocs != 0 {
		t.Fatalf("kDocs passed = %d, want 0 when use_rag disabled", retr.kDocs)
	}
	if retr.kWeb != 5 {
		t.Fatalf("kWeb passed = %d, want 5", retr.kWeb)
	}
	if state.Grounding != GroundingWebOnly {
		t.Fatalf("grounding = %s, want web_only", state.Grounding)
	}
}

func TestRunDegradedWebStillSucceeds(t *testing.T) {
	llm := &scriptedLLM{responses: happyResponses()}
	retr := &stubRetriever{result: retriever.Result{
		Items:     []retriever.EvidenceItem{docItem("d#000", 0.9), docItem("d#001", 0.8), docItem("d#002", 0.7)},
		WebFailed: true,
	}}
	orch := NewOrchestrator(llm, retr, Options{})

	state, err := orch.Run(context.Background(), "q", true, 5, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Stage != StageDone {
		t.Fatalf("stage = %s, want done despite web failure", state.Stage)
	}
	if len(state.Evidence) != 3 {
		t.Fatalf("evidence = %d items, want the 3 document chunks", len(state.Evidence))
	}
	for _, item := range state.Evidence {
		if item.Source != retriever.SourceDocument {
			t.Fatalf("unexpected source %s in degraded run", item.Source)
		}
	}
	if state.Grounding != GroundingDocsOnly {
		t.Fatalf("grounding = %s, want docs_only", state.Grounding)
	}
}

func TestRunEmptyEvidenceProceeds(t *testing.T) {
	llm := &scriptedLLM{responses: happyResponses()}
	retr := &stubRetriever{result: retriever.Result{WebFailed: true, DocsFailed: true}}
	orch := NewOrchestrator(llm, retr, Options{})

	state, err := orch.Run(context.Background(), "q", true, 5, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Stage != StageDone {
		t.Fatalf("stage = %s, want done", state.Stage)
	}
	if state.Grounding != GroundingNone {
		t.Fatalf("grounding = %s, want none", state.Grounding)
	}
}

func TestParsePlanSteps(t *testing.T) {
	response := "Here is the plan:\n- first step\n* second step\n3. third step\n\n"
	steps := parsePlanSteps(response)
	want := []string{"first step", "second step", "third step"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step[%d] = %q, want %q", i, steps[i], want[i])
		}
	}
}
