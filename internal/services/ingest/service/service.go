// Package service implements the pipeline controller
package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/logger"
	catalogdom "gridhot/internal/services/catalog/domain"
	"gridhot/internal/services/ingest/domain"
)

var validate = validator.New()

// Service orchestrates manifest consumption, batching, writes, and the
// optional per-group overlap analysis. It observes cancellation between
// batches only: an in-flight batch always finishes committing, and an
// interrupted run returns partial statistics rather than an error
type Service struct {
	Loader   domain.ManifestLoader
	Writer   domain.BatchWriterPort
	Tracker  domain.ProgressTracker
	View     domain.ViewMaintainer // optional; used when MaintainView is set
	Analyzer domain.Analyzer       // optional; nil disables the Analyzing state
}

// New constructs the pipeline controller
func New(
	loader domain.ManifestLoader,
	w domain.BatchWriterPort,
	tracker domain.ProgressTracker,
	view domain.ViewMaintainer,
	analyzer domain.Analyzer,
) *Service {
	if loader == nil {
		panic("ingest.Service requires a non nil ManifestLoader")
	}
	if w == nil {
		panic("ingest.Service requires a non nil BatchWriterPort")
	}
	if tracker == nil {
		panic("ingest.Service requires a non nil ProgressTracker")
	}
	return &Service{Loader: loader, Writer: w, Tracker: tracker, View: view, Analyzer: analyzer}
}

// runAgg accumulates counters and touched partitions across write loops
type runAgg struct {
	mu      sync.Mutex
	touched map[string]bool
}

func (a *runAgg) touch(report domain.WriteReport) {
	a.mu.Lock()
	for part := range report.PerPartition {
		a.touched[part] = true
	}
	a.mu.Unlock()
}

func transition(ctx context.Context, from, to domain.State) domain.State {
	logger.C(ctx).Debug().Str("from", string(from)).Str("to", string(to)).Msg("pipeline state")
	return to
}

// Run executes one pipeline run and returns its statistics.
// Configuration errors surface before any I/O; a manifest load failure is
// fatal; per-item failures are recorded in the ledger and never abort the run
func (s *Service) Run(ctx context.Context, opts domain.RunOptions) (domain.RunStats, error) {
	stats := domain.RunStats{State: domain.StateIdle}

	if err := validate.Struct(opts); err != nil {
		stats.State = domain.StateFailed
		return stats, perr.Wrap(err, perr.ErrorCodeValidation, "invalid run options")
	}

	stats.State = transition(ctx, stats.State, domain.StateLoading)
	items, err := s.Loader.Load(ctx)
	if err != nil {
		stats.State = domain.StateFailed
		return stats, perr.Wrap(err, perr.ErrorCodeUnknown, "manifest load failed")
	}

	if opts.RetryFailedOnly {
		items = s.filterRetries(items)
	}
	stats.TotalLoaded = len(items)

	stats.State = transition(ctx, stats.State, domain.StateBatching)

	wopts := domain.WriteOptions{
		InsertBatchSize:  opts.InsertBatchSize,
		CreatePartitions: opts.CreatePartitions,
		// view maintenance happens once at the end of the run, not per batch
		EnsureView: false,
	}
	agg := &runAgg{touched: make(map[string]bool)}

	var werr error
	if opts.Workers > 1 {
		werr = s.writeParallel(ctx, items, opts, wopts, &stats, agg)
	} else {
		werr = s.writeSequential(ctx, items, opts, wopts, &stats, agg)
	}
	if werr != nil {
		stats.State = domain.StateFailed
		return stats, werr
	}

	if opts.MaintainView && s.View != nil && len(agg.touched) > 0 {
		if err := s.View.EnsureUnifiedView(ctx, opts.ViewName); err != nil {
			logger.C(ctx).Error().Err(err).Msg("unified view maintenance failed")
		}
	}

	if s.Analyzer != nil && opts.Analyze && !stats.Interrupted {
		stats.State = transition(ctx, stats.State, domain.StateAnalyzing)
		s.analyze(ctx, agg, &stats)
	}

	stats.State = transition(ctx, stats.State, domain.StateFinalizing)
	ls := s.Tracker.Statistics()
	stats.FailedByStep = ls.FailedByStep

	if stats.Interrupted {
		stats.State = domain.StateInterrupted
	} else {
		stats.State = domain.StateCompleted
	}
	logger.C(ctx).Info().
		Int("total", stats.TotalLoaded).
		Int("processed", stats.Processed).
		Int("inserted", stats.Inserted).
		Int("batches", stats.CompletedBatches).
		Bool("interrupted", stats.Interrupted).
		Int("failed", ls.FailedCount).
		Msg("pipeline run finished")
	return stats, nil
}

// filterRetries reduces the manifest to exactly the identifiers previously
// marked failed; prior successes are never reprocessed
func (s *Service) filterRetries(items []domain.Item) []domain.Item {
	pending := s.Tracker.PendingRetries()
	allow := make(map[string]bool, len(pending))
	for _, id := range pending {
		allow[id] = true
	}
	out := items[:0:0]
	for _, it := range items {
		if allow[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// writeSequential is the default cooperative batch loop
func (s *Service) writeSequential(
	ctx context.Context,
	items []domain.Item,
	opts domain.RunOptions,
	wopts domain.WriteOptions,
	stats *domain.RunStats,
	agg *runAgg,
) error {
	stats.State = transition(ctx, stats.State, domain.StateWriting)

	for lo := 0; lo < len(items); lo += opts.BatchSize {
		// cancellation is polled between batches only
		if ctx.Err() != nil {
			stats.Interrupted = true
			return nil
		}
		hi := min(lo+opts.BatchSize, len(items))

		// the in-flight batch must finish committing even if the signal
		// arrives mid-batch
		report, err := s.Writer.Write(context.WithoutCancel(ctx), items[lo:hi], wopts)
		stats.Processed += report.Processed
		stats.Inserted += report.Inserted
		agg.touch(report)
		if err != nil {
			return err
		}
		stats.CompletedBatches++
	}
	return nil
}

// writeParallel processes independent groups concurrently, bounded by the
// worker count. Parallelism is only safe across different partitions, so
// items are bucketed by group key first and each bucket keeps its own
// sequential batch loop
func (s *Service) writeParallel(
	ctx context.Context,
	items []domain.Item,
	opts domain.RunOptions,
	wopts domain.WriteOptions,
	stats *domain.RunStats,
	agg *runAgg,
) error {
	stats.State = transition(ctx, stats.State, domain.StateWriting)

	buckets := make(map[string][]domain.Item)
	for _, it := range items {
		buckets[it.Record.GroupKey] = append(buckets[it.Record.GroupKey], it)
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		processed, inserted, batches atomic.Int64
		interrupted                  atomic.Bool
	)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(opts.Workers)
	for _, key := range keys {
		key := key
		bucket := buckets[key]
		g.Go(func() error {
			bctx := logger.WithRun(gctx, "", key)
			for lo := 0; lo < len(bucket); lo += opts.BatchSize {
				if ctx.Err() != nil {
					interrupted.Store(true)
					return nil
				}
				hi := min(lo+opts.BatchSize, len(bucket))
				report, err := s.Writer.Write(bctx, bucket[lo:hi], wopts)
				processed.Add(int64(report.Processed))
				inserted.Add(int64(report.Inserted))
				agg.touch(report)
				if err != nil {
					return err
				}
				batches.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Processed += int(processed.Load())
	stats.Inserted += int(inserted.Load())
	stats.CompletedBatches += int(batches.Load())
	stats.Interrupted = stats.Interrupted || interrupted.Load()
	return err
}

// analyze invokes the external overlap computation per touched group; one
// group's failure never aborts the others
func (s *Service) analyze(ctx context.Context, agg *runAgg, stats *domain.RunStats) {
	groups := make([]string, 0, len(agg.touched))
	for part := range agg.touched {
		groups = append(groups, catalogdom.GroupOf(part))
	}
	sort.Strings(groups)

	for _, g := range groups {
		if err := s.Analyzer.AnalyzeGroup(logger.WithRun(ctx, "", g), g); err != nil {
			logger.C(ctx).Error().Str("group_key", g).Err(err).Msg("overlap analysis failed")
			stats.FailedGroups = append(stats.FailedGroups, g)
			continue
		}
		stats.AnalyzedGroups = append(stats.AnalyzedGroups, g)
	}
}
