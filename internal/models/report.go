package models

import "encoding/json"

// OutcomeKind classifies the result of ingesting one item.
type OutcomeKind string

const (
	// OutcomeAdded means the item was embedded and inserted.
	OutcomeAdded OutcomeKind = "added"
	// OutcomeSkipped means the item's id was already stored (or seen earlier in the run).
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means embedding, normalization, or insertion failed for the item.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the per-item result of an ingestion run.
type Outcome struct {
	Index int         `json:"index"`
	ID    string      `json:"id"`
	Kind  OutcomeKind `json:"kind"`
	Err   error       `json:"-"`
}

// Failure records an item that could not be ingested.
type Failure struct {
	ID     string `json:"id"`
	Reason error  `json:"-"`
}

// MarshalJSON encodes the failure with its reason as text.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}{f.ID, f.Message()})
}

// Message returns the failure reason as text.
func (f Failure) Message() string {
	if f.Reason == nil {
		return ""
	}
	return f.Reason.Error()
}

// IngestReport summarizes an ingestion run. Outcomes are in item sequence order.
type IngestReport struct {
	Added    []string  `json:"added"`
	Skipped  []string  `json:"skipped"`
	Failures []Failure `json:"failures"`
	Outcomes []Outcome `json:"-"`
}

// Record appends o to the report.
func (r *IngestReport) Record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case OutcomeAdded:
		r.Added = append(r.Added, o.ID)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, o.ID)
	case OutcomeFailed:
		r.Failures = append(r.Failures, Failure{ID: o.ID, Reason: o.Err})
	}
}

// AddedCount returns the number of inserted items.
func (r *IngestReport) AddedCount() int { return len(r.Added) }

// SkippedCount returns the number of skipped items.
func (r *IngestReport) SkippedCount() int { return len(r.Skipped) }

// FailedCount returns the number of failed items.
func (r *IngestReport) FailedCount() int { return len(r.Failures) }

// Total returns the number of items processed.
func (r *IngestReport) Total() int { return len(r.Outcomes) }
