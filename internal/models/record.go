// Package models defines core data structures for records, query matches, and ingestion reports.
package models

// NormTolerance is the maximum allowed deviation of a stored vector's L2 norm from 1.
const NormTolerance = 1e-4

// Record is a stored (id, unit vector) pair.
type Record struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// Match is a single similarity query hit.
type Match struct {
	ID         string  `json:"id"`
	Similarity float32 `json:"similarity"`
}
