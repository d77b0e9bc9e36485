package models

import (
	"errors"
	"testing"
)

func TestIngestReport_Record(t *testing.T) {
	var r IngestReport
	r.Record(Outcome{Index: 0, ID: "a", Kind: OutcomeAdded})
	r.Record(Outcome{Index: 1, ID: "b", Kind: OutcomeSkipped})
	r.Record(Outcome{Index: 2, ID: "c", Kind: OutcomeFailed, Err: ErrDegenerateVector})

	if r.AddedCount() != 1 || r.SkippedCount() != 1 || r.FailedCount() != 1 {
		t.Errorf("counts: added=%d skipped=%d failed=%d", r.AddedCount(), r.SkippedCount(), r.FailedCount())
	}
	if r.Total() != 3 {
		t.Errorf("Total() = %d, want 3", r.Total())
	}
	if r.Failures[0].ID != "c" || !errors.Is(r.Failures[0].Reason, ErrDegenerateVector) {
		t.Errorf("unexpected failure: %+v", r.Failures[0])
	}
	if r.Failures[0].Message() != "degenerate vector" {
		t.Errorf("Message() = %q", r.Failures[0].Message())
	}
}

func TestDimensionError_Is(t *testing.T) {
	err := NewDimensionError(3, 2)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("DimensionError should match ErrDimensionMismatch")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("DimensionError should not match ErrNotFound")
	}
	if err.Error() != "dimension mismatch: expected 3, got 2" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestBackendError(t *testing.T) {
	cause := errors.New("disk full")
	err := BackendError("insert", cause)
	if !errors.Is(err, ErrBackendFailure) || !errors.Is(err, cause) {
		t.Errorf("BackendError should wrap both sentinel and cause: %v", err)
	}
	if BackendError("noop", nil) != nil {
		t.Error("BackendError(nil) should be nil")
	}
}
