// Package collection runs collection jobs: it claims the system-wide run
// slot, drains every source adapter in parallel, and feeds the records
// through normalization, merging and scoring.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
	"github.com/lueurxax/workflow-popularity/internal/core/ports"
	"github.com/lueurxax/workflow-popularity/internal/ingest/sources"
	"github.com/lueurxax/workflow-popularity/internal/platform/observability"
	"github.com/lueurxax/workflow-popularity/internal/platform/worker"
	"github.com/lueurxax/workflow-popularity/internal/process/merge"
	"github.com/lueurxax/workflow-popularity/internal/process/normalize"
	"github.com/lueurxax/workflow-popularity/internal/process/novelty"
	"github.com/lueurxax/workflow-popularity/internal/process/scoring"
)

const (
	logFieldRunID    = "run_id"
	logFieldJob      = "job"
	logFieldSource   = "source"
	logFieldFetched  = "fetched"
	logFieldDuration = "duration"

	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"

	kindWindow = "window"
	kindDecay  = "decay"

	entityPageSize = 500
	summarySep     = "; "

	defaultAdapterTimeout = 5 * time.Minute
	defaultFetchLimit     = 200
	defaultDeepFetchLimit = 1000
)

// Config tunes run execution.
type Config struct {
	// AdapterTimeout bounds one adapter's complete fetch.
	AdapterTimeout time.Duration

	// FetchLimit caps records per adapter for daily and manual runs.
	FetchLimit int

	// DeepFetchLimit caps records per adapter for the weekly run.
	DeepFetchLimit int
}

func (c Config) withDefaults() Config {
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = defaultAdapterTimeout
	}

	if c.FetchLimit <= 0 {
		c.FetchLimit = defaultFetchLimit
	}

	if c.DeepFetchLimit <= 0 {
		c.DeepFetchLimit = defaultDeepFetchLimit
	}

	return c
}

// ValidJob reports whether name is a known job.
func ValidJob(name string) bool {
	switch name {
	case domain.JobDailyCollection, domain.JobWeeklyAnalytics, domain.JobManual:
		return true
	default:
		return false
	}
}

// Orchestrator owns the collection run lifecycle.
type Orchestrator struct {
	store      ports.Store
	adapters   []sources.Adapter
	normalizer *normalize.Normalizer
	merger     *merge.Merger
	scorer     *scoring.Scorer
	novelty    *novelty.Service
	cfg        Config
	logger     *zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	report RunReport
	err    error
}

// New creates an Orchestrator over the given adapters.
func New(store ports.Store, adapters []sources.Adapter, tuning domain.Tuning, cfg Config, logger *zerolog.Logger) *Orchestrator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	o := &Orchestrator{
		store:      store,
		adapters:   adapters,
		normalizer: normalize.New(tuning),
		scorer:     scoring.New(tuning),
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        time.Now,
		active:     make(map[string]*activeRun),
	}

	clock := func() time.Time { return o.now() }
	o.merger = merge.New(store, tuning, logger, merge.WithClock(clock))
	o.novelty = novelty.NewService(store, tuning).WithClock(clock)

	return o
}

// WithClock overrides the clock used for scoring and analytics.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now

	return o
}

// Trigger claims the run slot and executes the job in the background. It
// returns coreerrors.ErrAlreadyRunning at once when another run holds the
// slot. The run outlives ctx; use Cancel to stop it.
func (o *Orchestrator) Trigger(ctx context.Context, jobName string) (Ticket, error) {
	run, err := o.claim(ctx, jobName)
	if err != nil {
		return Ticket{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar := o.register(run.ID, cancel)

	go func() {
		defer close(ar.done)
		defer cancel()
		defer o.unregister(run.ID)

		ar.report, ar.err = o.execute(runCtx, run)
	}()

	return Ticket{RunID: run.ID, JobName: run.JobName, StartedAt: run.StartedAt}, nil
}

// Run claims the run slot and executes the job synchronously. Cancelling ctx
// cancels the run at its next checkpoint.
func (o *Orchestrator) Run(ctx context.Context, jobName string) (RunReport, error) {
	run, err := o.claim(ctx, jobName)
	if err != nil {
		return RunReport{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ar := o.register(run.ID, cancel)

	ar.report, ar.err = o.execute(runCtx, run)
	o.unregister(run.ID)
	close(ar.done)

	return ar.report, ar.err
}

// Wait blocks until the run finishes and returns its report. Runs that are
// not active in this process are loaded from storage.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (RunReport, error) {
	o.mu.Lock()
	ar, ok := o.active[runID]
	o.mu.Unlock()

	if ok {
		select {
		case <-ctx.Done():
			return RunReport{}, fmt.Errorf("wait for run %s: %w", runID, ctx.Err())
		case <-ar.done:
			return ar.report, ar.err
		}
	}

	run, err := o.store.LoadRun(ctx, runID)
	if err != nil {
		return RunReport{}, fmt.Errorf("load run %s: %w", runID, err)
	}

	if run == nil {
		return RunReport{}, fmt.Errorf("run %s: %w", runID, coreerrors.ErrNotFound)
	}

	return RunReport{Run: *run}, nil
}

// Cancel requests cooperative cancellation of an active run. A fetch already
// in flight is not interrupted.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ar, ok := o.active[runID]
	if !ok {
		return fmt.Errorf("active run %s: %w", runID, coreerrors.ErrNotFound)
	}

	ar.cancel()

	return nil
}

func (o *Orchestrator) claim(ctx context.Context, jobName string) (domain.CollectionJobRun, error) {
	if !ValidJob(jobName) {
		return domain.CollectionJobRun{}, fmt.Errorf("job %q: %w", jobName, coreerrors.ErrInvalidInput)
	}

	run, ok, err := o.store.TryStartRun(ctx, jobName)
	if err != nil {
		return domain.CollectionJobRun{}, fmt.Errorf("claim run slot for %s: %w", jobName, err)
	}

	if !ok {
		observability.CollectionRejected.WithLabelValues(jobName).Inc()

		return domain.CollectionJobRun{}, fmt.Errorf("%s: %w", jobName, coreerrors.ErrAlreadyRunning)
	}

	return run, nil
}

func (o *Orchestrator) register(runID string, cancel context.CancelFunc) *activeRun {
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.active[runID] = ar
	o.mu.Unlock()

	return ar
}

func (o *Orchestrator) unregister(runID string) {
	o.mu.Lock()
	delete(o.active, runID)
	o.mu.Unlock()
}

// execute drives one claimed run to a terminal state. ctx is only consulted at
// checkpoints; storage work runs on a context detached from cancellation.
func (o *Orchestrator) execute(ctx context.Context, run domain.CollectionJobRun) (report RunReport, err error) {
	logger := o.logger.With().Str(logFieldRunID, run.ID).Str(logFieldJob, run.JobName).Logger()
	storeCtx := context.WithoutCancel(ctx)
	started := o.now()

	observability.CollectionInProgress.Inc()
	defer observability.CollectionInProgress.Dec()

	stats := domain.RunStats{Fetched: make(map[domain.Source]int)}
	report = RunReport{Run: run}

	defer worker.RecoverPanic(&logger, "collection run", func(v any) {
		report.Run = o.finish(storeCtx, run, domain.RunStatusFailed, fmt.Sprintf("panic: %v", v), stats, started, &logger)
		err = fmt.Errorf("run %s panicked: %v", run.ID, v)
	})

	logger.Info().Int("adapters", len(o.adapters)).Msg("starting collection run")

	records, outcomes, cancelled := o.fetchAll(ctx, storeCtx, o.limitFor(run.JobName), &logger)
	report.Sources = outcomes

	for _, out := range outcomes {
		stats.Fetched[out.Source] += out.Fetched
	}

	if cancelled {
		return o.cancelled(storeCtx, report, stats, started, &logger)
	}

	if allFailed(outcomes) {
		summary := joinSummary(coreerrors.ErrAllSourcesFailed.Error(), sourceSummary(outcomes))
		report.Run = o.finish(storeCtx, run, domain.RunStatusFailed, summary, stats, started, &logger)

		return report, fmt.Errorf("run %s: %w", run.ID, coreerrors.ErrAllSourcesFailed)
	}

	observations, dropped, errs := o.normalizer.NormalizeBatch(records)
	stats.Malformed = dropped

	for _, e := range errs {
		var malformed *coreerrors.MalformedRecordError
		if errors.As(e, &malformed) {
			observability.MalformedRecords.WithLabelValues(malformed.Source).Inc()
		}

		logger.Debug().Err(e).Msg("dropped malformed record")
	}

	if ctx.Err() != nil {
		return o.cancelled(storeCtx, report, stats, started, &logger)
	}

	merged, err := o.merger.Merge(storeCtx, observations)
	if err != nil {
		report.Run = o.finish(storeCtx, run, domain.RunStatusFailed, fmt.Sprintf("merge: %v", err), stats, started, &logger)

		return report, fmt.Errorf("merge observations: %w", err)
	}

	stats.Created, stats.Linked, stats.Conflicts = merged.Created, merged.Linked, merged.Conflicts
	observability.EntitiesMerged.WithLabelValues("created").Add(float64(merged.Created))
	observability.EntitiesMerged.WithLabelValues("linked").Add(float64(merged.Linked))
	observability.MergeConflicts.Add(float64(merged.Conflicts))

	if ctx.Err() != nil {
		return o.cancelled(storeCtx, report, stats, started, &logger)
	}

	scoredAt := o.now().UTC()

	written, observed, err := o.scoreWindow(storeCtx, merged.Pairs, failedSources(outcomes), scoredAt)
	stats.Snapshots += written

	if err != nil {
		report.Run = o.finish(storeCtx, run, domain.RunStatusFailed, fmt.Sprintf("score: %v", err), stats, started, &logger)

		return report, fmt.Errorf("score entities: %w", err)
	}

	if run.JobName == domain.JobWeeklyAnalytics {
		decayed, err := o.decayUnobserved(storeCtx, observed, scoredAt)
		stats.Snapshots += decayed

		if err != nil {
			report.Run = o.finish(storeCtx, run, domain.RunStatusFailed, fmt.Sprintf("decay: %v", err), stats, started, &logger)

			return report, fmt.Errorf("decay unobserved entities: %w", err)
		}

		report.Divergent = o.sweepDivergence(storeCtx, &logger)
	}

	o.advanceWatermarks(storeCtx, outcomes, started, &logger)

	summary := joinSummary(sourceSummary(outcomes), countSummary("malformed records", stats.Malformed), countSummary("merge conflicts", stats.Conflicts))
	report.Run = o.finish(storeCtx, run, domain.RunStatusSucceeded, summary, stats, started, &logger)

	return report, nil
}

func (o *Orchestrator) limitFor(jobName string) int {
	if jobName == domain.JobWeeklyAnalytics {
		return o.cfg.DeepFetchLimit
	}

	return o.cfg.FetchLimit
}

type fetchResult struct {
	index   int
	records []domain.RawRecord
	outcome SourceOutcome
}

// fetchAll drains every adapter concurrently. Adapters run on fetchCtx, which
// ignores cancellation; ctx is checked after each adapter completes and
// cancelled is true when it was done at such a checkpoint.
func (o *Orchestrator) fetchAll(ctx, fetchCtx context.Context, limit int, logger *zerolog.Logger) (records []domain.RawRecord, outcomes []SourceOutcome, cancelled bool) {
	since := make([]time.Time, len(o.adapters))

	for i, a := range o.adapters {
		wm, err := o.store.LoadWatermark(fetchCtx, a.Source())
		if err != nil {
			logger.Warn().Err(err).Str(logFieldSource, string(a.Source())).Msg("failed to load watermark, fetching without one")
		}

		since[i] = wm
	}

	results := make(chan fetchResult, len(o.adapters))

	// Errors travel in each result; one degraded source never stops the others.
	var g errgroup.Group

	for i, a := range o.adapters {
		g.Go(func() error {
			results <- o.fetchOne(fetchCtx, i, a, since[i], limit, logger)

			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	collected := make([]fetchResult, len(o.adapters))

	for res := range results {
		collected[res.index] = res

		if ctx.Err() != nil {
			cancelled = true

			break
		}
	}

	outcomes = make([]SourceOutcome, 0, len(collected))

	for _, res := range collected {
		if res.outcome.Source == "" {
			continue
		}

		records = append(records, res.records...)
		outcomes = append(outcomes, res.outcome)
	}

	return records, outcomes, cancelled
}

func (o *Orchestrator) fetchOne(ctx context.Context, index int, a sources.Adapter, since time.Time, limit int, logger *zerolog.Logger) (res fetchResult) {
	src := a.Source()
	start := time.Now()
	res = fetchResult{index: index, outcome: SourceOutcome{Source: src}}

	defer func() {
		res.outcome.Fetched = len(res.records)
		res.outcome.Duration = time.Since(start)
		o.recordFetch(res.outcome, logger)
	}()

	defer worker.RecoverPanic(logger, "fetch "+string(src), func(v any) {
		res.outcome.Err = &coreerrors.SourceUnavailableError{Source: string(src), Err: fmt.Errorf("adapter panicked: %v", v)}
	})

	err := worker.RunWithTimeout(ctx, o.cfg.AdapterTimeout, func(ctx context.Context) error {
		var err error

		res.records, err = sources.Drain(a.Fetch(ctx, since, limit))
		if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ctx.Err()
		}

		return err
	})
	if err != nil && !errors.Is(err, coreerrors.ErrSourceUnavailable) {
		err = &coreerrors.SourceUnavailableError{Source: string(src), Err: err}
	}

	res.outcome.Err = err

	return res
}

func (o *Orchestrator) recordFetch(out SourceOutcome, logger *zerolog.Logger) {
	src := string(out.Source)

	observability.SourceFetchDuration.WithLabelValues(src).Observe(out.Duration.Seconds())
	observability.SourceRecordsFetched.WithLabelValues(src).Add(float64(out.Fetched))

	if out.Err == nil {
		logger.Info().Str(logFieldSource, src).Int(logFieldFetched, out.Fetched).Dur(logFieldDuration, out.Duration).Msg("source fetched")

		return
	}

	outcome := outcomeUnavailable
	if errors.Is(out.Err, context.DeadlineExceeded) {
		outcome = outcomeTimeout
	}

	observability.SourceFailures.WithLabelValues(src, outcome).Inc()
	logger.Warn().Err(out.Err).Str(logFieldSource, src).Int(logFieldFetched, out.Fetched).Msg("source degraded for this run")
}

// scoreWindow appends snapshots for every entity observed in the batch and
// returns the number written and the set of observed entity ids. Observations
// of degraded sources keep their entity links but do not score: their
// watermark stays put and the next run delivers them again.
func (o *Orchestrator) scoreWindow(ctx context.Context, pairs []merge.Merged, degraded map[domain.Source]bool, now time.Time) (int, map[string]bool, error) {
	windows := make(map[string][]domain.WorkflowObservation)
	for _, p := range pairs {
		if degraded[p.Observation.Source] {
			continue
		}

		windows[p.Entity.ID] = append(windows[p.Entity.ID], p.Observation)
	}

	ids := make([]string, 0, len(windows))
	for id := range windows {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	observed := make(map[string]bool, len(ids))
	written := 0

	for _, id := range ids {
		observed[id] = true

		latest, err := o.store.LoadLatestSnapshots(ctx, id)
		if err != nil {
			return written, observed, fmt.Errorf("load priors of %s: %w", id, err)
		}

		n, err := o.append(ctx, o.scorer.Score(id, windows[id], scoring.PriorsByCountry(latest), now), kindWindow)
		written += n

		if err != nil {
			return written, observed, err
		}
	}

	return written, observed, nil
}

// decayUnobserved appends decay-only snapshots for stored entities that the
// run did not observe.
func (o *Orchestrator) decayUnobserved(ctx context.Context, observed map[string]bool, now time.Time) (int, error) {
	written := 0
	after := ""

	for {
		page, err := o.store.ListEntities(ctx, after, entityPageSize)
		if err != nil {
			return written, fmt.Errorf("list entities: %w", err)
		}

		for _, e := range page {
			if observed[e.ID] {
				continue
			}

			latest, err := o.store.LoadLatestSnapshots(ctx, e.ID)
			if err != nil {
				return written, fmt.Errorf("load priors of %s: %w", e.ID, err)
			}

			n, err := o.append(ctx, o.scorer.Decay(e.ID, scoring.PriorsByCountry(latest), now), kindDecay)
			written += n

			if err != nil {
				return written, err
			}
		}

		if len(page) < entityPageSize {
			return written, nil
		}

		after = page[len(page)-1].ID
	}
}

func (o *Orchestrator) append(ctx context.Context, snaps []domain.PopularityScoreSnapshot, kind string) (int, error) {
	for i, snap := range snaps {
		if err := o.store.AppendSnapshot(ctx, snap); err != nil {
			return i, fmt.Errorf("append snapshot %s/%s: %w", snap.EntityID, snap.Country, err)
		}

		observability.SnapshotsWritten.WithLabelValues(kind).Inc()
	}

	return len(snaps), nil
}

func (o *Orchestrator) sweepDivergence(ctx context.Context, logger *zerolog.Logger) int {
	results, err := o.novelty.GetDivergence(ctx, "")
	if err != nil {
		logger.Error().Err(err).Msg("divergence sweep failed")

		return 0
	}

	observability.DivergentEntities.Set(float64(len(results)))

	for _, r := range results {
		logger.Info().
			Str("entity_id", r.EntityID).
			Str("high_country", r.HighCountry).
			Str("low_country", r.LowCountry).
			Float64("magnitude", r.Magnitude).
			Msg("geographic divergence")
	}

	return len(results)
}

// advanceWatermarks moves the watermark of every source whose adapters all
// succeeded to the run start.
func (o *Orchestrator) advanceWatermarks(ctx context.Context, outcomes []SourceOutcome, at time.Time, logger *zerolog.Logger) {
	failed := failedSources(outcomes)
	done := make(map[domain.Source]bool)

	for _, out := range outcomes {
		if failed[out.Source] || done[out.Source] {
			continue
		}

		done[out.Source] = true

		if err := o.store.SaveWatermark(ctx, out.Source, at.UTC()); err != nil {
			logger.Warn().Err(err).Str(logFieldSource, string(out.Source)).Msg("failed to save watermark")
		}
	}
}

func (o *Orchestrator) cancelled(ctx context.Context, report RunReport, stats domain.RunStats, started time.Time, logger *zerolog.Logger) (RunReport, error) {
	report.Run = o.finish(ctx, report.Run, domain.RunStatusFailed, domain.SummaryCancelled, stats, started, logger)

	return report, fmt.Errorf("run %s: %w", report.Run.ID, coreerrors.ErrRunCancelled)
}

func (o *Orchestrator) finish(ctx context.Context, run domain.CollectionJobRun, status domain.RunStatus, summary string, stats domain.RunStats, started time.Time, logger *zerolog.Logger) domain.CollectionJobRun {
	if err := o.store.FinishRun(ctx, run.ID, status, summary, stats); err != nil {
		logger.Error().Err(err).Msg("failed to finish run")
	}

	finished := o.now()
	run.FinishedAt = &finished
	run.Status = status
	run.ErrorSummary = summary
	run.Stats = stats

	observability.CollectionRuns.WithLabelValues(run.JobName, string(status)).Inc()
	observability.CollectionRunDuration.WithLabelValues(run.JobName).Observe(finished.Sub(started).Seconds())

	event := logger.Info()
	if status == domain.RunStatusFailed {
		event = logger.Warn()
	}

	event.Str("status", string(status)).
		Str("summary", summary).
		Int("entities_created", stats.Created).
		Int("snapshots", stats.Snapshots).
		Msg("collection run finished")

	return run
}

func sourceSummary(outcomes []SourceOutcome) string {
	var parts []string

	for _, out := range outcomes {
		if out.Failed() {
			parts = append(parts, out.Err.Error())
		}
	}

	return strings.Join(parts, summarySep)
}

func countSummary(label string, n int) string {
	if n == 0 {
		return ""
	}

	return fmt.Sprintf("%s: %d", label, n)
}

func joinSummary(parts ...string) string {
	kept := parts[:0]

	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, summarySep)
}
