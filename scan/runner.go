package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/graph"
	"github.com/reconurge/flowsint/plugin"
)

// tracerName identifies runner spans to the tracing backend.
const tracerName = "github.com/reconurge/flowsint/scan"

// Recorder persists job state for external observers. The runner updates
// a job exactly twice: once when it enters StatusRunning and once when it
// reaches a terminal status.
//
// A Recorder failure never fails the scan; it is logged and the run
// proceeds, since losing a status update is preferable to losing results.
type Recorder interface {
	Record(ctx context.Context, job *Job) error
}

// NopRecorder discards job updates. Used when no job store is configured.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, *Job) error { return nil }

// Outcome is the result of one scan run.
type Outcome struct {
	// Job is the job in its terminal state.
	Job *Job

	// Entities are the normalized inputs that survived coercion and
	// filtering.
	Entities []entity.Entity

	// Result is the plugin's raw execution result.
	Result plugin.RawResult

	// Derivations are the input/output pairs the plugin derived. Empty
	// when the run failed before enrichment.
	Derivations []plugin.Derivation

	// SkippedWrites counts graph writes that were skipped because the
	// store was unreachable. Non-zero means the graph is behind the
	// outcome.
	SkippedWrites int
}

// Runner executes scan jobs end to end. It owns the graph writes: for each
// derivation it upserts the input node, the output node, and the typed
// relationship between them, all scoped by the job's sketch id.
type Runner struct {
	plugins  *plugin.Registry
	graph    *graph.Materializer
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRecorder sets the job state recorder.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets the tracer for per-stage spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = tracer }
}

// NewRunner creates a Runner over the given plugin registry and graph
// materializer.
func NewRunner(plugins *plugin.Registry, materializer *graph.Materializer, opts ...RunnerOption) *Runner {
	r := &Runner{
		plugins:  plugins,
		graph:    materializer,
		recorder: NopRecorder{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one scan: resolve the plugin, normalize the raw inputs,
// execute, enrich, and materialize every derivation into the graph.
//
// The returned Outcome always carries the job in a terminal state. The
// error is non-nil only when the run aborted before the plugin produced a
// result (unknown plugin, normalization failure); a plugin-level failure
// is reported through the job's Failure, not the error.
func (r *Runner) Run(ctx context.Context, pluginName string, rawInputs []any, sketchID string) (Outcome, error) {
	job := NewJob(sketchID, pluginName, rawInputs)

	ctx, span := r.tracer.Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("scan.plugin", pluginName),
		attribute.String("scan.sketch_id", sketchID),
		attribute.String("scan.job_id", job.ID),
		attribute.Int("scan.inputs", len(rawInputs)),
	))
	defer span.End()

	p, err := r.plugins.Get(pluginName)
	if err != nil {
		return r.abort(ctx, job, err)
	}

	if err := job.Transition(StatusRunning); err != nil {
		return Outcome{Job: job}, err
	}
	r.record(ctx, job)

	entities, err := r.normalize(ctx, p, rawInputs)
	if err != nil {
		return r.abort(ctx, job, err)
	}

	result := r.execute(ctx, p, entities)
	if result.IsFailure() {
		r.fail(ctx, job, failureKind(result.Reason), result.Reason)
		return Outcome{Job: job, Entities: entities, Result: result}, nil
	}

	derivations, err := r.enrich(ctx, p, result, entities)
	if err != nil {
		r.fail(ctx, job, flowsint.KindExecution, err.Error())
		return Outcome{Job: job, Entities: entities, Result: result}, nil
	}

	skipped := r.materialize(ctx, sketchID, p.RelationshipType(), derivations)

	if err := job.Transition(StatusFinished); err != nil {
		return Outcome{Job: job}, err
	}
	r.record(ctx, job)

	r.logger.Info("scan finished",
		"job_id", job.ID,
		"plugin", pluginName,
		"sketch_id", sketchID,
		"inputs", len(entities),
		"derivations", len(derivations),
		"skipped_writes", skipped)

	return Outcome{
		Job:           job,
		Entities:      entities,
		Result:        result,
		Derivations:   derivations,
		SkippedWrites: skipped,
	}, nil
}

func (r *Runner) normalize(ctx context.Context, p plugin.Plugin, raws []any) ([]entity.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "scan.normalize")
	defer span.End()
	return p.Normalize(ctx, raws)
}

// execute invokes the plugin behind a panic boundary. A panicking plugin
// fails its own job, never the worker running it.
func (r *Runner) execute(ctx context.Context, p plugin.Plugin, entities []entity.Entity) (result plugin.RawResult) {
	ctx, span := r.tracer.Start(ctx, "scan.execute")
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panicked during execute",
				"plugin", p.Name(),
				"panic", rec)
			result = plugin.Failed(fmt.Sprintf("internal failure: %v", rec))
		}
	}()

	return p.Execute(ctx, entities)
}

func (r *Runner) enrich(ctx context.Context, p plugin.Plugin, result plugin.RawResult, entities []entity.Entity) (derivations []plugin.Derivation, err error) {
	ctx, span := r.tracer.Start(ctx, "scan.enrich")
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panicked during enrich",
				"plugin", p.Name(),
				"panic", rec)
			derivations = nil
			err = flowsint.NewInternalError("Runner.enrich",
				fmt.Errorf("plugin %s panicked: %v", p.Name(), rec))
		}
	}()

	return p.Enrich(ctx, result, entities)
}

// materialize upserts the node pair and relationship for every derivation.
// Writes are idempotent on natural keys, so repeated derivations of the
// same entity cost one extra MERGE, not a duplicate node. Store failures
// are skipped and counted; the scan still finishes.
func (r *Runner) materialize(ctx context.Context, sketchID, relType string, derivations []plugin.Derivation) int {
	ctx, span := r.tracer.Start(ctx, "scan.materialize", trace.WithAttributes(
		attribute.Int("scan.derivations", len(derivations)),
	))
	defer span.End()

	skipped := 0
	refs := make(map[string]graph.NodeRef)

	upsert := func(ent entity.Entity) (graph.NodeRef, bool) {
		key, err := graph.NodeKey(ent.Kind(), ent.NaturalKey())
		if err == nil {
			if ref, ok := refs[key]; ok {
				return ref, true
			}
		}

		ref, err := r.graph.UpsertNode(ctx, sketchID, ent)
		if err != nil {
			if errors.Is(err, flowsint.ErrStoreUnavailable) {
				skipped++
				return ref, true
			}
			r.logger.Error("node upsert failed",
				"sketch_id", sketchID,
				"kind", ent.Kind(),
				"error", err)
			return ref, false
		}

		refs[ref.Key] = ref
		return ref, true
	}

	for _, d := range derivations {
		from, ok := upsert(d.Input)
		if !ok {
			continue
		}
		to, ok := upsert(d.Output)
		if !ok {
			continue
		}

		if relType == "" {
			continue
		}
		if _, err := r.graph.UpsertRelationship(ctx, sketchID, from, to, relType); err != nil {
			if errors.Is(err, flowsint.ErrStoreUnavailable) {
				skipped++
				continue
			}
			r.logger.Error("relationship upsert failed",
				"sketch_id", sketchID,
				"type", relType,
				"error", err)
		}
	}

	return skipped
}

// abort fails the job before the plugin ran and returns the original error.
func (r *Runner) abort(ctx context.Context, job *Job, err error) (Outcome, error) {
	r.fail(ctx, job, errorKind(err), err.Error())
	return Outcome{Job: job}, err
}

func (r *Runner) fail(ctx context.Context, job *Job, kind, message string) {
	if err := job.Fail(kind, message); err != nil {
		r.logger.Error("job transition failed", "job_id", job.ID, "error", err)
		return
	}
	r.record(ctx, job)

	r.logger.Warn("scan failed",
		"job_id", job.ID,
		"plugin", job.Plugin,
		"sketch_id", job.SketchID,
		"kind", kind,
		"reason", message)
}

func (r *Runner) record(ctx context.Context, job *Job) {
	if err := r.recorder.Record(ctx, job); err != nil {
		r.logger.Warn("recording job state failed",
			"job_id", job.ID,
			"status", job.Status,
			"error", err)
	}
}

// errorKind extracts the taxonomy bucket from a structured error.
func errorKind(err error) string {
	var ferr *flowsint.Error
	if errors.As(err, &ferr) && ferr.Kind != "" {
		return ferr.Kind
	}
	return flowsint.KindInternal
}

// failureKind classifies an execution failure reason. Timeouts get their
// own bucket so operators can tell slow upstreams from broken ones.
func failureKind(reason string) string {
	switch reason {
	case "timeout":
		return flowsint.KindTimeout
	case "cancelled":
		return flowsint.KindInternal
	default:
		return flowsint.KindExecution
	}
}
