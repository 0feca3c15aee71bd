package models

import (
	"time"

	"job-market-etl/errors"
)

// Stage names the pipeline states in order.
type Stage string

const (
	StageLoaded          Stage = "Loaded"
	StageDeduplicated    Stage = "Deduplicated"
	StageNormalized      Stage = "Normalized"
	StageSkillsExtracted Stage = "SkillsExtracted"
	StageEmitted         Stage = "Emitted"
)

// StageTransition records how many rows left a stage.
type StageTransition struct {
	Stage    Stage
	Rows     int
	Duration time.Duration
}

// SalaryViolation keeps the original values of a posting whose maximum pay
// is below its minimum pay.
type SalaryViolation struct {
	JobID     int64
	PostingID string
	SalaryMin float64
	SalaryMax float64
}

// QualityReport tallies every anomaly found during a run.
type QualityReport struct {
	RunID      string
	SourcePath string
	StartedAt  time.Time
	FinishedAt time.Time

	RowsRead    int
	JobsEmitted int

	Counts           map[errors.ErrorType]int
	Stages           []StageTransition
	SalaryViolations []SalaryViolation
}

// NewQualityReport creates an empty report for the given run.
func NewQualityReport(runID, sourcePath string) *QualityReport {
	return &QualityReport{
		RunID:      runID,
		SourcePath: sourcePath,
		StartedAt:  time.Now().UTC(),
		Counts:     make(map[errors.ErrorType]int),
	}
}

// Add increments the count for kind by n.
func (r *QualityReport) Add(kind errors.ErrorType, n int) {
	if n == 0 {
		return
	}
	r.Counts[kind] += n
}

// Count returns the tally for kind.
func (r *QualityReport) Count(kind errors.ErrorType) int {
	return r.Counts[kind]
}

// Issues returns the total number of recorded anomalies.
func (r *QualityReport) Issues() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Transition appends a stage transition.
func (r *QualityReport) Transition(stage Stage, rows int, d time.Duration) {
	r.Stages = append(r.Stages, StageTransition{Stage: stage, Rows: rows, Duration: d})
}

// Result is what a successful pipeline run hands to the sinks. Jobs holds
// only the normalized jobs that were emitted, aligned with Tables.Jobs.
type Result struct {
	RunID  string
	Jobs   []*NormalizedJob
	Tables *Tables
	Report *QualityReport
}
