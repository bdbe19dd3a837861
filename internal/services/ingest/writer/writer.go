// Package writer commits batches of bbox records into their partitions
package writer

import (
	"context"
	"sort"
	"sync"

	"gridhot/internal/platform/logger"
	"gridhot/internal/repokit"
	catalogdom "gridhot/internal/services/catalog/domain"
	"gridhot/internal/services/ingest/domain"
	"gridhot/internal/services/ledger"
)

// Writer is the batch writer. Each (chunk, partition) pair commits
// atomically: either every record destined for that partition in the chunk
// is persisted, or none are, and the failure is reported per record
type Writer struct {
	DB      repokit.TxRunner
	Binder  repokit.Binder[catalogdom.CatalogRepo]
	Tracker domain.ProgressTracker
	View    domain.ViewMaintainer

	mu      sync.Mutex
	created map[string]bool
}

// New constructs the batch writer
func New(
	db repokit.TxRunner,
	binder repokit.Binder[catalogdom.CatalogRepo],
	tracker domain.ProgressTracker,
	view domain.ViewMaintainer,
) *Writer {
	if db == nil {
		panic("ingest.Writer requires a non nil TxRunner")
	}
	if binder == nil {
		panic("ingest.Writer requires a non nil Repo binder")
	}
	if tracker == nil {
		panic("ingest.Writer requires a non nil ProgressTracker")
	}
	return &Writer{
		DB:      db,
		Binder:  binder,
		Tracker: tracker,
		View:    view,
		created: make(map[string]bool),
	}
}

// Write chunks items into commits of at most opts.InsertBatchSize records,
// creates target partitions on demand, and reports every record's outcome to
// the tracker with its failure step
func (w *Writer) Write(ctx context.Context, items []domain.Item, opts domain.WriteOptions) (domain.WriteReport, error) {
	report := domain.WriteReport{PerPartition: make(map[string]int)}

	chunk := opts.InsertBatchSize
	if chunk <= 0 {
		chunk = len(items)
	}

	for lo := 0; lo < len(items); lo += chunk {
		hi := min(lo+chunk, len(items))
		if err := w.writeChunk(ctx, items[lo:hi], opts, &report); err != nil {
			return report, err
		}
	}

	if opts.EnsureView && w.View != nil {
		if err := w.View.EnsureUnifiedView(ctx, opts.ViewName); err != nil {
			return report, err
		}
	}
	return report, nil
}

// writeChunk groups one chunk by target partition and commits each partition
// group in its own transaction
func (w *Writer) writeChunk(
	ctx context.Context,
	items []domain.Item,
	opts domain.WriteOptions,
	report *domain.WriteReport,
) error {
	byPart := make(map[string][]domain.Item)

	for _, it := range items {
		report.Processed++

		if it.Err != nil {
			step := it.FailedStep
			if step == "" {
				step = ledger.StepTransform
			}
			if err := w.Tracker.Record(it.ID, false, step); err != nil {
				return err
			}
			continue
		}

		part, err := catalogdom.Route(it.Record.GroupKey)
		if err != nil {
			logger.C(ctx).Warn().Str("item", it.ID).Str("group_key", it.Record.GroupKey).
				Err(err).Msg("unroutable record")
			if err := w.Tracker.Record(it.ID, false, ledger.StepTransform); err != nil {
				return err
			}
			continue
		}
		byPart[part] = append(byPart[part], it)
	}

	parts := make([]string, 0, len(byPart))
	for p := range byPart {
		parts = append(parts, p)
	}
	sort.Strings(parts)

	for _, part := range parts {
		group := byPart[part]

		if opts.CreatePartitions {
			if err := w.ensureCreated(ctx, part); err != nil {
				return err
			}
		}

		recs := make([]catalogdom.Record, len(group))
		for i, it := range group {
			recs[i] = it.Record
		}

		var inserted int
		txErr := repokit.WithTx(ctx, w.DB, func(q repokit.Queryer) error {
			n, err := w.Binder.Bind(q).InsertRecords(ctx, part, recs)
			inserted = n
			return err
		})

		if txErr != nil {
			// the whole partition group rolled back; report each record, keep going
			logger.C(ctx).Error().Str("partition", part).Int("records", len(group)).
				Err(txErr).Msg("partition batch rejected")
			for _, it := range group {
				if err := w.Tracker.Record(it.ID, false, ledger.StepInsert); err != nil {
					return err
				}
			}
			continue
		}

		for _, it := range group {
			if err := w.Tracker.Record(it.ID, true, ""); err != nil {
				return err
			}
		}
		report.Inserted += inserted
		report.PerPartition[part] += len(group)
	}
	return nil
}

// ensureCreated runs create-if-absent once per partition per writer lifetime
func (w *Writer) ensureCreated(ctx context.Context, part string) error {
	w.mu.Lock()
	done := w.created[part]
	w.mu.Unlock()
	if done {
		return nil
	}
	if err := w.Binder.Bind(w.DB).CreatePartition(ctx, part); err != nil {
		return err
	}
	w.mu.Lock()
	w.created[part] = true
	w.mu.Unlock()
	return nil
}
