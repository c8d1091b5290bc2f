package pipeline

import "fmt"

// PlanningError covers completion failures during the Plan stage and
// responses from which no plan steps could be parsed.
type PlanningError struct{ Err error }

func (e *PlanningError) Error() string { return fmt.Sprintf("planning: %v", e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }

// ResearchError covers completion failures during the Research stage.
// Retrieval failures are not research errors; they degrade the evidence set.
type ResearchError struct{ Err error }

func (e *ResearchError) Error() string { return fmt.Sprintf("research: %v", e.Err) }
func (e *ResearchError) Unwrap() error { return e.Err }

// CritiqueError covers completion failures during the Critique stage.
type CritiqueError struct{ Err error }

func (e *CritiqueError) Error() string { return fmt.Sprintf("critique: %v", e.Err) }
func (e *CritiqueError) Unwrap() error { return e.Err }

// SummarizeError covers completion failures during the Summarize stage.
type SummarizeError struct{ Err error }

func (e *SummarizeError) Error() string { return fmt.Sprintf("summarize: %v", e.Err) }
func (e *SummarizeError) Unwrap() error { return e.Err }
