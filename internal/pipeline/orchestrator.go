package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/deepresearch/internal/retriever"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxTokens   = 4000
	defaultTemperature = 0.3
)

// Options tunes a pipeline run. Zero values fall back to defaults.
type Options struct {
	// Timeout bounds each external call (completion, retrieval) separately.
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Logger      *log.Logger
	Metrics     *Metrics
}

// Orchestrator drives a query through the Plan, Research, Critique and
// Summarize stages in order. It is safe for concurrent use; each Run owns
// its own state.
type Orchestrator struct {
	llm       Completer
	retriever Retriever
	logger    *log.Logger
	metrics   *Metrics

	timeout     time.Duration
	maxTokens   int
	temperature float64
}

// NewOrchestrator builds an orchestrator from its two capabilities.
func NewOrchestrator(llm Completer, retr Retriever, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Orchestrator{
		llm:         llm,
		retriever:   retr,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		timeout:     opts.Timeout,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

// Run executes the full pipeline for query. The returned state always ends
// in StageDone or StageFailed; on failure err carries the stage error and
// state.Error mirrors it. Setting useRAG false forces kDocs to zero so the
// document store is never consulted.
func (o *Orchestrator) Run(ctx context.Context, query string, useRAG bool, kWeb, kDocs int) (ResearchState, error) {
	state := ResearchState{
		ID:        uuid.NewString(),
		Query:     query,
		Stage:     StagePending,
		StartedAt: time.Now(),
	}
	if !useRAG {
		kDocs = 0
	}
	o.logger.Printf("run %s: query=%q use_rag=%v k_web=%d k_docs=%d", state.ID, query, useRAG, kWeb, kDocs)

	state, err := o.planStage(ctx, state)
	if err != nil {
		return o.fail(state, "plan", err), err
	}
	state, err = o.researchStage(ctx, state, kWeb, kDocs)
	if err != nil {
		return o.fail(state, "research", err), err
	}
	state, err = o.critiqueStage(ctx, state)
	if err != nil {
		return o.fail(state, "critique", err), err
	}
	state, err = o.summarizeStage(ctx, state)
	if err != nil {
		return o.fail(state, "summarize", err), err
	}

	state.Stage = StageDone
	state.CompletedAt = time.Now()
	if o.metrics != nil {
		o.metrics.observeRun("done", "", state.CompletedAt.Sub(state.StartedAt))
	}
	o.logger.Printf("run %s: done in %s (grounding=%s)", state.ID, state.CompletedAt.Sub(state.StartedAt).Round(time.Millisecond), state.Grounding)
	return state, nil
}

func (o *Orchestrator) planStage(ctx context.Context, state ResearchState) (ResearchState, error) {
	state.Stage = StagePlanning
	started := time.Now()

	response, err := o.generate(ctx, createPlanPrompt(state.Query))
	if err != nil {
		return state, &PlanningError{Err: err}
	}
	steps := parsePlanSteps(response)
	if len(steps) == 0 {
		return state, &PlanningError{Err: fmt.Errorf("no plan steps in response")}
	}
	state.Plan = steps
	o.observeStage(StagePlanning, started)
	o.logger.Printf("run %s: planned %d steps", state.ID, len(steps))
	return state, nil
}

func (o *Orchestrator) researchStage(ctx context.Context, state ResearchState, kWeb, kDocs int) (ResearchState, error) {
	state.Stage = StageResearching
	started := time.Now()

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	result := o.retriever.Retrieve(rctx, state.Query, kWeb, kDocs)
	cancel()
	state.Evidence = result.Items
	state.Grounding = groundingFor(result.Items)

	findings, err := o.generate(ctx, createResearchPrompt(state.Query, state.Plan, state.Evidence))
	if err != nil {
		return state, &ResearchError{Err: err}
	}
	state.Findings = findings
	o.observeStage(StageResearching, started)
	o.logger.Printf("run %s: researched with %d evidence items (grounding=%s)", state.ID, len(state.Evidence), state.Grounding)
	return state, nil
}

func (o *Orchestrator) critiqueStage(ctx context.Context, state ResearchState) (ResearchState, error) {
	state.Stage = StageCritiquing
	started := time.Now()

	response, err := o.generate(ctx, createCritiquePrompt(state.Query, state.Findings))
	if err != nil {
		return state, &CritiqueError{Err: err}
	}
	state.Critique, state.Gaps = parseGaps(response)
	o.observeStage(StageCritiquing, started)
	o.logger.Printf("run %s: critiqued, %d gaps identified", state.ID, len(state.Gaps))
	return state, nil
}

func (o *Orchestrator) summarizeStage(ctx context.Context, state ResearchState) (ResearchState, error) {
	state.Stage = StageSummarizing
	started := time.Now()

	answer, err := o.generate(ctx, createSummaryPrompt(state.Query, state.Findings, state.Critique, state.Gaps))
	if err != nil {
		return state, &SummarizeError{Err: err}
	}
	state.FinalAnswer = answer
	o.observeStage(StageSummarizing, started)
	return state, nil
}

// generate issues one completion call bounded by the per-call timeout.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.llm.Generate(ctx, prompt, o.maxTokens, o.temperature)
}

func (o *Orchestrator) fail(state ResearchState, stage string, err error) ResearchState {
	state.Stage = StageFailed
	state.Error = &RunError{Stage: stage, Message: err.Error()}
	state.CompletedAt = time.Now()
	if o.metrics != nil {
		o.metrics.observeRun("failed", stage, state.CompletedAt.Sub(state.StartedAt))
	}
	o.logger.Printf("run %s: failed at %s: %v", state.ID, stage, err)
	return state
}

func (o *Orchestrator) observeStage(stage Stage, started time.Time) {
	if o.metrics != nil {
		o.metrics.observeStage(string(stage), time.Since(started))
	}
}

// groundingFor reports which sources actually contributed evidence.
func groundingFor(items []retriever.EvidenceItem) string {
	var web, docs bool
	for _, item := range items {
		switch item.Source {
		case retriever.SourceWeb:
			web = true
		case retriever.SourceDocument:
			docs = true
		}
	}
	switch {
	case web && docs:
		return GroundingFull
	case web:
		return GroundingWebOnly
	case docs:
		return GroundingDocsOnly
	default:
		return GroundingNone
	}
}
