package queue

import (
	"fmt"
	"time"
)

// ScanItem is one scan job handed to an enrichment worker. It carries
// everything the worker needs to run the plugin against the batch.
type ScanItem struct {
	// JobID is the unique scan job identifier.
	JobID string `json:"job_id"`

	// SketchID scopes every graph write the scan performs.
	SketchID string `json:"sketch_id"`

	// Plugin is the name of the plugin to run.
	Plugin string `json:"plugin"`

	// Inputs are the raw values to normalize and enrich.
	Inputs []any `json:"inputs"`

	// TraceID is the distributed tracing trace ID, propagated so worker
	// spans join the submitter's trace.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the distributed tracing parent span ID.
	SpanID string `json:"span_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the scan was
	// submitted.
	SubmittedAt int64 `json:"submitted_at"`
}

// ScanResult is the outcome of one scan, published to the job's result
// channel for the submitter to collect.
type ScanResult struct {
	// JobID correlates this result with the submitted scan.
	JobID string `json:"job_id"`

	// Status is the terminal job status ("finished" or "error").
	Status string `json:"status"`

	// FailureKind is the error taxonomy bucket when Status is "error".
	FailureKind string `json:"failure_kind,omitempty"`

	// FailureMessage is the human-readable reason when Status is "error".
	FailureMessage string `json:"failure_message,omitempty"`

	// Derived counts the entities the scan materialized.
	Derived int `json:"derived"`

	// WorkerID identifies the worker that processed the scan.
	WorkerID string `json:"worker_id"`

	// StartedAt is the Unix timestamp in milliseconds when the scan started.
	StartedAt int64 `json:"started_at"`

	// CompletedAt is the Unix timestamp in milliseconds when the scan
	// reached a terminal status.
	CompletedAt int64 `json:"completed_at"`
}

// PluginMeta is the discovery record for a registered plugin, stored as a
// Redis hash.
type PluginMeta struct {
	// Name is the unique plugin name.
	Name string `json:"name"`

	// Category groups plugins in listings (e.g., "infrastructure").
	Category string `json:"category"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// InputKind is the entity kind the plugin consumes.
	InputKind string `json:"input_kind"`

	// OutputKind is the entity kind the plugin produces.
	OutputKind string `json:"output_kind"`

	// WorkerCount is the number of active workers for this plugin.
	WorkerCount int `json:"worker_count"`
}

// IsValid reports whether the scan item has every required field.
func (s *ScanItem) IsValid() error {
	if s.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if s.SketchID == "" {
		return fmt.Errorf("sketch_id is required")
	}
	if s.Plugin == "" {
		return fmt.Errorf("plugin is required")
	}
	if len(s.Inputs) == 0 {
		return fmt.Errorf("inputs cannot be empty")
	}
	if s.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", s.SubmittedAt)
	}
	return nil
}

// Age returns the duration since the scan was submitted. Useful for
// detecting stale items and measuring queue wait time.
func (s *ScanItem) Age() time.Duration {
	if s.SubmittedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-s.SubmittedAt) * time.Millisecond
}

// Failed reports whether the result represents a failed scan.
func (r *ScanResult) Failed() bool {
	return r.Status == "error"
}

// Duration returns the wall-clock time the worker spent on the scan.
func (r *ScanResult) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// IsValid reports whether the result has every required field.
func (r *ScanResult) IsValid() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.Status != "finished" && r.Status != "error" {
		return fmt.Errorf("status must be finished or error, got %q", r.Status)
	}
	if r.Failed() && r.FailureMessage == "" {
		return fmt.Errorf("failure_message is required when status is error")
	}
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.StartedAt <= 0 {
		return fmt.Errorf("started_at must be positive, got %d", r.StartedAt)
	}
	if r.CompletedAt < r.StartedAt {
		return fmt.Errorf("completed_at (%d) cannot be before started_at (%d)", r.CompletedAt, r.StartedAt)
	}
	return nil
}

// IsValid reports whether the plugin metadata has every required field.
func (p *PluginMeta) IsValid() error {
	if p.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if p.InputKind == "" {
		return fmt.Errorf("input_kind is required")
	}
	if p.OutputKind == "" {
		return fmt.Errorf("output_kind is required")
	}
	if p.WorkerCount < 0 {
		return fmt.Errorf("worker_count must be non-negative, got %d", p.WorkerCount)
	}
	return nil
}

// Consumes reports whether the plugin accepts the given entity kind.
func (p *PluginMeta) Consumes(kind string) bool {
	return p.InputKind == kind
}
