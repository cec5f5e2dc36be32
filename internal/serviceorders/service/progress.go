package service

import (
	"context"
	"time"
)

// Stage is a step of the ingestion pipeline.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageValidating  Stage = "validating"
	StageParsing     Stage = "parsing"
	StageNormalizing Stage = "normalizing"
	StageReconciling Stage = "reconciling"
	StagePersisting  Stage = "persisting"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

// Milestone percentages. They only ever increase within a run.
const (
	PercentValidated = 10
	PercentParsed    = 40
	PercentPreWrite  = 70
	PercentPersisted = 100
)

// Progress is one milestone event. Result is set on the terminal event of a
// successful or partially written run.
type Progress struct {
	Stage     Stage         `json:"stage"`
	Percent   int           `json:"percent"`
	Label     string        `json:"label"`
	Result    *IngestResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Terminal reports whether no further events follow.
func (p Progress) Terminal() bool {
	return p.Stage == StageComplete || p.Stage == StageError
}

// ProgressReporter receives milestones as a run advances. Implementations must
// not block the pipeline for long; failures are theirs to log.
type ProgressReporter interface {
	Report(ctx context.Context, p Progress)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ctx context.Context, p Progress)

func (f ProgressFunc) Report(ctx context.Context, p Progress) { f(ctx, p) }

type nopReporter struct{}

func (nopReporter) Report(context.Context, Progress) {}
