// Package scan orchestrates one enrichment run: resolve the plugin,
// normalize the raw inputs, execute, enrich, and materialize the derived
// entities into the graph. The scan runner is the only component that
// writes to the graph; plugins declare derivations and never touch storage.
package scan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reconurge/flowsint"
)

// Status is the lifecycle state of a scan job.
type Status string

const (
	// StatusPending means the job is created but not yet started.
	StatusPending Status = "pending"

	// StatusRunning means the job is executing.
	StatusRunning Status = "running"

	// StatusFinished means the job completed successfully.
	StatusFinished Status = "finished"

	// StatusError means the job terminated with a failure.
	StatusError Status = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// validTransitions encodes the monotonic lifecycle:
// pending -> running -> finished|error. Terminal states have no exits.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusError},
	StatusRunning: {StatusFinished, StatusError},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Failure describes why a job reached StatusError, in the structured form
// surfaced to operators and stored with the job.
type Failure struct {
	// Kind is the error taxonomy bucket (not_found, validation, execution,
	// timeout, internal).
	Kind string `json:"kind"`

	// Message is a human-readable reason.
	Message string `json:"message"`
}

// Job is one enrichment run over a batch of raw inputs within a sketch.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id"`

	// SketchID scopes every graph write the job performs.
	SketchID string `json:"sketch_id"`

	// Plugin is the name of the plugin to run.
	Plugin string `json:"plugin"`

	// Inputs are the raw values submitted by the caller, before
	// normalization.
	Inputs []any `json:"inputs"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Failure is set when Status is StatusError.
	Failure *Failure `json:"failure,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job entered StatusRunning.
	StartedAt time.Time `json:"started_at,omitzero"`

	// FinishedAt is when the job reached a terminal status.
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NewJob creates a pending job with a fresh unique id.
func NewJob(sketchID, pluginName string, inputs []any) *Job {
	return &Job{
		ID:        uuid.NewString(),
		SketchID:  sketchID,
		Plugin:    pluginName,
		Inputs:    inputs,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Transition moves the job to the next status, stamping the relevant
// timestamp. An invalid transition (including any exit from a terminal
// state) is rejected and leaves the job unchanged.
func (j *Job) Transition(next Status) error {
	if !j.Status.CanTransition(next) {
		return flowsint.NewInternalError("Job.Transition",
			fmt.Errorf("job %s: cannot transition from %s to %s", j.ID, j.Status, next))
	}

	j.Status = next
	switch next {
	case StatusRunning:
		j.StartedAt = time.Now()
	case StatusFinished, StatusError:
		j.FinishedAt = time.Now()
	}

	return nil
}

// Fail transitions the job to StatusError with the given failure.
func (j *Job) Fail(kind, message string) error {
	if err := j.Transition(StatusError); err != nil {
		return err
	}
	j.Failure = &Failure{Kind: kind, Message: message}
	return nil
}
