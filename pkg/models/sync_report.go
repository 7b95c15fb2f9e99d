package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncState is the state of a sync run.
type SyncState string

const (
	SyncStateIdle        SyncState = "idle"
	SyncStateDownloading SyncState = "downloading"
	SyncStateExtracting  SyncState = "extracting"
	SyncStateReconciling SyncState = "reconciling"
	SyncStateDone        SyncState = "done"
	SyncStateFailed      SyncState = "failed"
)

// RecordFailure describes one record that could not be ingested.
type RecordFailure struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SupplierConflict reports a tax id that arrived with a different supplier name.
type SupplierConflict struct {
	Index        int    `json:"index"`
	Kind         string `json:"kind"`
	TaxID        string `json:"tax_id"`
	ExistingName string `json:"existing_name"`
	IncomingName string `json:"incoming_name"`
}

// SyncReport summarises one sync run.
type SyncReport struct {
	RunID  uuid.UUID `json:"run_id"`
	Period Period    `json:"period"`
	State  SyncState `json:"state"`

	Seen               int                `json:"seen"`
	Inserted           int                `json:"inserted"`
	Updated            int                `json:"updated"`
	SkippedDuplicate   int                `json:"skipped_duplicate"`
	AmendmentsInserted int                `json:"amendments_inserted"`
	SuppliersInserted  int                `json:"suppliers_inserted"`
	Failed             int                `json:"failed"`
	NoSupplier         int                `json:"no_supplier"`
	ShapeCounts        map[string]int     `json:"shape_counts,omitempty"`
	Failures           []RecordFailure    `json:"failures,omitempty"`
	Conflicts          []SupplierConflict `json:"conflicts,omitempty"`
	CacheInvalidated   bool               `json:"cache_invalidated"`
	Cancelled          bool               `json:"cancelled,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// Error is the top-level failure that aborted the run, if any.
	Error string `json:"error,omitempty"`
	// Retryable marks a transport failure that a later trigger may get past
	// (5xx, 429, dropped connection). The engine itself never retries.
	Retryable bool `json:"retryable,omitempty"`
}

// NewSyncReport starts an empty report for period.
func NewSyncReport(period Period, now time.Time) *SyncReport {
	return &SyncReport{
		RunID:       uuid.New(),
		Period:      period,
		State:       SyncStateIdle,
		ShapeCounts: make(map[string]int),
		StartedAt:   now,
	}
}

// Writes reports whether the run committed anything to the store.
func (r *SyncReport) Writes() int {
	return r.Inserted + r.Updated + r.AmendmentsInserted + r.SuppliersInserted
}

// AddFailure records a failed record.
func (r *SyncReport) AddFailure(index int, kind, message string) {
	r.Failed++
	r.Failures = append(r.Failures, RecordFailure{Index: index, Kind: kind, Message: message})
}

// Finish stamps the end of the run.
func (r *SyncReport) Finish(state SyncState, now time.Time) {
	r.State = state
	r.FinishedAt = now
	r.Duration = now.Sub(r.StartedAt)
}
