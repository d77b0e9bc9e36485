// Package cli implements the ruiji command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteMatches writes search results to w. Text output is one "<id>: <similarity>" line
// per match with the given number of decimals.
func WriteMatches(w io.Writer, response *models.SearchResponse, format OutputFormat, decimals int) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	for _, m := range response.Matches {
		if _, err := fmt.Fprintf(w, "%s: %.*f\n", m.ID, decimals, m.Similarity); err != nil {
			return err
		}
	}
	if response.Total > len(response.Matches) {
		_, err := fmt.Fprintf(w, "(%d of %d matches shown)\n", len(response.Matches), response.Total)
		return err
	}
	return nil
}

// WriteElapsed writes the query time line.
func WriteElapsed(w io.Writer, d time.Duration) {
	fmt.Fprintf(w, "time: %.3f sec\n", d.Seconds())
}

// ProgressLine formats one ingestion outcome as "[i/n] <status>: <label>".
func ProgressLine(o models.Outcome, total int, label string) string {
	prefix := fmt.Sprintf("[%d/%d]", o.Index, total)
	switch o.Kind {
	case models.OutcomeAdded:
		return fmt.Sprintf("%s Added: %s", prefix, label)
	case models.OutcomeSkipped:
		return fmt.Sprintf("%s Skip (already added): %s", prefix, label)
	default:
		reason := "unknown error"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		return fmt.Sprintf("%s Error: %s: %s", prefix, label, reason)
	}
}

// WriteReport writes an ingestion summary.
func WriteReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	_, err := fmt.Fprintf(w, "Added: %d, Skipped: %d, Failed: %d\n",
		report.AddedCount(), report.SkippedCount(), report.FailedCount())
	return err
}

// ReadVectorFile reads a query vector from a JSON file holding either an array of numbers
// or an object with a "vector" array.
func ReadVectorFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector file: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		var wrapped struct {
			Vector []float32 `json:"vector"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse vector file %s: %w", path, err)
		}
		vec = wrapped.Vector
	}
	if len(vec) == 0 {
		return nil, errors.New("vector file holds no values")
	}
	return vec, nil
}

// WriteVectorFile writes vec as a JSON array.
func WriteVectorFile(w io.Writer, vec []float32) error {
	return json.NewEncoder(w).Encode(vec)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
