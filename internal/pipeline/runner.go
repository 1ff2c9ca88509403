// Package pipeline runs the extract, transform and load stages over the
// staging directories.
//
// Each stage is batch and single-threaded: it consumes its whole input
// before returning, and clears its own output first so a retried stage
// reproduces the same artifacts. Run sequences the three stages and retries
// a failed stage wholesale with a fixed delay.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/document"
	"github.com/JonMunkholm/jobetl/internal/extract"
	"github.com/JonMunkholm/jobetl/internal/loader"
	"github.com/JonMunkholm/jobetl/internal/logging"
	"github.com/JonMunkholm/jobetl/internal/mapping"
	"github.com/JonMunkholm/jobetl/internal/staging"
	"github.com/JonMunkholm/jobetl/internal/store"
	"github.com/JonMunkholm/jobetl/internal/telemetry"
	"github.com/JonMunkholm/jobetl/internal/textnorm"
)

// Staging is the artifact store between stages.
type Staging interface {
	Reset(ctx context.Context, stage core.Stage) error
	List(ctx context.Context, stage core.Stage) ([]staging.Artifact, error)
	WriteExtracted(ctx context.Context, e core.Extracted) error
	ReadExtracted(a staging.Artifact) (core.Extracted, error)
	WriteTransformed(ctx context.Context, r core.Record) error
	ReadTransformed(a staging.Artifact) (core.Record, error)
}

// Sink receives the grouped batches of a load.
type Sink interface {
	Load(ctx context.Context, b loader.Batches) (store.Result, error)
}

// Options configures a Runner.
type Options struct {
	// Source is the CSV file read by extract.
	Source  string
	Extract extract.Options

	// MaxRetries is how many times a failed stage is retried in Run.
	MaxRetries int
	// RetryDelay is the fixed wait between retries.
	RetryDelay time.Duration
	// LoadTimeout bounds the load transaction; zero means no bound.
	LoadTimeout time.Duration
}

// Runner executes pipeline stages. Individual stage methods may be called
// directly; Run allows one run at a time.
type Runner struct {
	staging Staging
	mapper  *mapping.Mapper
	sink    Sink
	opts    Options

	running atomic.Bool

	mu     sync.Mutex
	stats  *Stats
	latest *Report
}

// New returns a Runner. sink may be nil when only extract and transform
// are used.
func New(st Staging, mapper *mapping.Mapper, sink Sink, opts Options) *Runner {
	return &Runner{
		staging: st,
		mapper:  mapper,
		sink:    sink,
		opts:    opts,
		stats:   &Stats{},
	}
}

// Stats returns the counters of the current or most recent run.
func (r *Runner) Stats() *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Latest returns a copy of the current or most recent run report.
func (r *Runner) Latest() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Report{}, false
	}
	rep := r.latest.clone()
	if rep.Status == StatusRunning {
		rep.Counts = r.stats.Snapshot()
	}
	return rep, true
}

// Extract stages one raw payload per kept CSV row.
func (r *Runner) Extract(ctx context.Context) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.extract")
	defer span.End()
	logger := logging.WithFields(ctx, "stage", core.StageExtract)
	start := time.Now()

	if err := r.staging.Reset(ctx, core.StageExtract); err != nil {
		return 0, spanError(span, err)
	}

	stats, err := extract.File(ctx, r.opts.Source, r.opts.Extract, func(e core.Extracted) error {
		return r.staging.WriteExtracted(ctx, e)
	})
	if err != nil {
		return stats.Extracted, spanError(span, fmt.Errorf("extract %s: %w", r.opts.Source, err))
	}

	st := r.Stats()
	st.extracted.Store(int64(stats.Extracted))
	st.dropped.Store(int64(stats.Dropped))

	span.SetAttributes(
		attribute.Int("rows", stats.Rows),
		attribute.Int("dropped", stats.Dropped),
		attribute.Int("extracted", stats.Extracted),
	)
	logger.Info("stage finished",
		"rows", stats.Rows,
		"dropped", stats.Dropped,
		"extracted", stats.Extracted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats.Extracted, nil
}

// Transform maps every extracted payload to a normalized record, in
// sequence order. A payload that is not a valid JSON object becomes an
// all-null placeholder with the same sequence and correlation id.
func (r *Runner) Transform(ctx context.Context) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.transform")
	defer span.End()
	logger := logging.WithFields(ctx, "stage", core.StageTransform)
	start := time.Now()

	if err := r.staging.Reset(ctx, core.StageTransform); err != nil {
		return 0, spanError(span, err)
	}
	artifacts, err := r.staging.List(ctx, core.StageExtract)
	if err != nil {
		return 0, spanError(span, err)
	}

	st := r.Stats()
	st.transformed.Store(0)
	st.placeholders.Store(0)

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return int(st.Transformed()), spanError(span, err)
		}

		e, err := r.staging.ReadExtracted(a)
		if err != nil {
			return int(st.Transformed()), spanError(span, err)
		}

		rec := r.transformOne(e)
		if rec.Placeholder {
			st.placeholders.Add(1)
			logger.Warn("malformed payload replaced by placeholder",
				"sequence", rec.Sequence,
				"correlation_id", rec.CorrelationID,
				"reason", rec.Reason,
			)
		}

		if err := r.staging.WriteTransformed(ctx, rec); err != nil {
			return int(st.Transformed()), spanError(span, err)
		}
		st.transformed.Add(1)
	}

	span.SetAttributes(
		attribute.Int64("transformed", st.Transformed()),
		attribute.Int64("placeholders", st.Placeholders()),
	)
	logger.Info("stage finished",
		"transformed", st.Transformed(),
		"placeholders", st.Placeholders(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return int(st.Transformed()), nil
}

// transformOne never fails: anything wrong with the payload yields a
// placeholder record.
func (r *Runner) transformOne(e core.Extracted) core.Record {
	rec := core.Record{
		Sequence:      e.Sequence,
		CorrelationID: e.CorrelationID,
		State:         core.StateExtracted,
	}

	tables, err := r.mapPayload(e.Payload)
	if err != nil {
		rec.Placeholder = true
		rec.Reason = err.Error()
		tables = r.mapper.Placeholder()
	}
	rec.Tables = tables

	// extracted -> transformed cannot fail for a fresh record.
	_ = rec.Advance(core.StateTransformed)
	return rec
}

func (r *Runner) mapPayload(payload []byte) (core.Tables, error) {
	doc, err := document.Parse(payload)
	if err != nil {
		return nil, err
	}
	if err := textnorm.NormalizeDocument(doc); err != nil {
		return nil, core.MalformedDocument("normalize posting", err)
	}
	tables, err := r.mapper.Map(doc)
	if err != nil {
		return nil, core.MalformedDocument("normalize posting", err)
	}
	return tables, nil
}

// Load reads every transformed record back in sequence order, groups them
// by table and hands the batches to the sink in one transaction. Any
// unreadable artifact fails the whole stage before the store is touched.
func (r *Runner) Load(ctx context.Context) (store.Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.load")
	defer span.End()
	logger := logging.WithFields(ctx, "stage", core.StageLoad)
	start := time.Now()

	if r.sink == nil {
		return store.Result{}, spanError(span, core.Internal("load stage has no sink", nil))
	}

	artifacts, err := r.staging.List(ctx, core.StageTransform)
	if err != nil {
		return store.Result{}, spanError(span, err)
	}

	records := make([]core.Record, 0, len(artifacts))
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return store.Result{}, spanError(span, err)
		}
		rec, err := r.staging.ReadTransformed(a)
		if err != nil {
			return store.Result{}, spanError(span, err)
		}
		records = append(records, rec)
	}

	batches, err := loader.Group(r.mapper.Mapping(), records)
	if err != nil {
		return store.Result{}, spanError(span, core.LoadError("group records", err))
	}

	loadCtx := ctx
	if r.opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, r.opts.LoadTimeout)
		defer cancel()
	}

	res, err := r.sink.Load(loadCtx, batches)
	if err != nil {
		return store.Result{}, spanError(span, err)
	}

	for i := range records {
		if err := records[i].Advance(core.StateLoaded); err != nil {
			return res, spanError(span, core.Internal("advance record", err))
		}
	}
	r.Stats().loaded.Store(int64(len(records)))

	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("jobs", res.Jobs))
	logger.Info("stage finished",
		"records", len(records),
		"jobs", res.Jobs,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Start begins a run in the background and returns its id. It fails with
// core.ErrRunInProgress if a run is already executing. The run lives as
// long as ctx, so pass a server-scoped context, not a request's.
func (r *Runner) Start(ctx context.Context) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", core.ErrRunInProgress
	}
	runID := uuid.NewString()
	r.begin(runID)

	go func() {
		defer r.running.Store(false)
		r.execute(ctx, runID)
	}()
	return runID, nil
}

// Run executes extract, transform and load in order, retrying each failed
// stage up to MaxRetries times, and returns the final report.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, core.ErrRunInProgress
	}
	defer r.running.Store(false)

	runID := uuid.NewString()
	r.begin(runID)
	return r.execute(ctx, runID)
}

func (r *Runner) begin(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = &Stats{}
	r.latest = &Report{
		RunID:     runID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

func (r *Runner) execute(ctx context.Context, runID string) (Report, error) {
	ctx = logging.ContextWithRunID(ctx, runID)
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	logger := logging.FromContext(ctx)
	logger.Info("run started", "source", r.opts.Source)

	var runErr error
	for _, stage := range core.Stages {
		sr, err := r.runStage(ctx, stage)
		r.recordStage(sr)
		if err != nil {
			runErr = fmt.Errorf("stage %s: %w", stage, err)
			break
		}
	}

	rep := r.finish(runErr)
	if runErr != nil {
		spanError(span, runErr)
		logger.Error("run failed", "error", runErr, "code", rep.ErrorCode, "stats", r.Stats())
		return rep, runErr
	}
	logger.Info("run finished", "stats", r.Stats(), "duration_ms", rep.FinishedAt.Sub(rep.StartedAt).Milliseconds())
	return rep, nil
}

func (r *Runner) runStage(ctx context.Context, stage core.Stage) (StageReport, error) {
	sr := StageReport{Stage: stage}
	start := time.Now()

	op := func() error {
		sr.Attempts++
		n, res, err := r.stageOnce(ctx, stage)
		if err != nil {
			if ctx.Err() != nil || core.IsConstraintViolation(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		sr.Records = n
		if res != nil {
			r.mu.Lock()
			r.latest.Load = res
			r.mu.Unlock()
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.opts.RetryDelay), uint64(r.opts.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		logging.WithFields(ctx, "stage", stage).Warn("stage failed, retrying",
			"attempt", sr.Attempts,
			"error", err,
			"retry_in", wait,
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	sr.Duration = time.Since(start)
	if err != nil {
		sr.Error = err.Error()
	}
	return sr, err
}

func (r *Runner) stageOnce(ctx context.Context, stage core.Stage) (int, *store.Result, error) {
	switch stage {
	case core.StageExtract:
		n, err := r.Extract(ctx)
		return n, nil, err
	case core.StageTransform:
		n, err := r.Transform(ctx)
		return n, nil, err
	case core.StageLoad:
		res, err := r.Load(ctx)
		if err != nil {
			return 0, nil, err
		}
		return int(r.Stats().Loaded()), &res, nil
	default:
		return 0, nil, backoff.Permanent(fmt.Errorf("unknown stage %q", stage))
	}
}

func (r *Runner) recordStage(sr StageReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest.Stages = append(r.latest.Stages, sr)
}

func (r *Runner) finish(runErr error) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest.FinishedAt = time.Now()
	r.latest.Counts = r.stats.Snapshot()
	if runErr != nil {
		r.latest.Status = StatusFailed
		r.latest.Error = runErr.Error()
		r.latest.ErrorCode = core.MapError(runErr).Code
	} else {
		r.latest.Status = StatusSucceeded
	}
	return r.latest.clone()
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
