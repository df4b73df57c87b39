package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is the audit record of one search request.
type Run struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Query       string    `json:"query"`
	HasDocument bool      `json:"has_document"`
	Mode        string    `json:"mode"`
	SQL         string    `json:"sql,omitempty"`
	Stage       string    `json:"stage,omitempty"` // failure stage of the structured path, if any
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	RowCount    int       `json:"row_count"`
	ChunkCount  int       `json:"chunk_count"`
	RankedCount int       `json:"ranked_count"`
	DurationMs  int64     `json:"duration_ms"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Mode  string
	Stage string
	Limit int
}
