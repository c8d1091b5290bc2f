package pipeline

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/retriever"
)

// Stage is the lifecycle position of a research run. It advances one way and
// never regresses; failed is reachable from any stage.
type Stage string

const (
	StagePending     Stage = "pending"
	StagePlanning    Stage = "planning"
	StageResearching Stage = "researching"
	StageCritiquing  Stage = "critiquing"
	StageSummarizing Stage = "summarizing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Grounding markers describe which retrieval sources actually contributed
// evidence to a run.
const (
	GroundingFull     = "full"
	GroundingWebOnly  = "web_only"
	GroundingDocsOnly = "docs_only"
	GroundingNone     = "none"
)

// RunError records which stage failed and why. Present only on failed states.
type RunError struct {
	Stage   string `json:"stage"` // plan, research, critique, summarize
	Message string `json:"message"`
}

// ResearchState is the record threaded through the pipeline. Each stage takes
// the prior state by value and returns a new one with its fields populated;
// a state is owned by exactly one run and never reused.
type ResearchState struct {
	ID          string                   `json:"id"`
	Query       string                   `json:"query"`
	Plan        []string                 `json:"plan,omitempty"`
	Evidence    []retriever.EvidenceItem `json:"evidence,omitempty"`
	Findings    string                   `json:"findings,omitempty"`
	Critique    string                   `json:"critique,omitempty"`
	Gaps        []string                 `json:"gaps,omitempty"`
	FinalAnswer string                   `json:"final_answer,omitempty"`
	Grounding   string                   `json:"grounding,omitempty"`
	Stage       Stage                    `json:"stage"`
	Error       *RunError                `json:"error,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at"`
}

// Completer is the completion capability a stage invokes once per stage.
type Completer interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Retriever is the evidence-gathering capability the Research stage invokes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, kWeb, kDocs int) retriever.Result
}
