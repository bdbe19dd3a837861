// Package ledger persists per-item pipeline outcomes across process restarts.
// It is the pipeline's resumability primitive: an append log under the working
// directory with a dedup-on-read path, so the last entry per item wins and a
// later success clears an earlier failure
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/logger"

	"github.com/google/uuid"
)

// Step enumerates the pipeline stage an item failed at
type Step string

// Failure steps, recorded so operators can see which stage is failing
// without reprocessing
const (
	StepFetch     Step = "fetch"
	StepTransform Step = "transform"
	StepInsert    Step = "insert"
)

const (
	logName  = "progress.jsonl"
	lockName = "ledger.lock"
)

// Entry is one recorded outcome for an item
type Entry struct {
	ItemID string    `json:"item_id"`
	OK     bool      `json:"ok"`
	Step   Step      `json:"step,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
	At     time.Time `json:"at"`
}

// Statistics aggregates outcomes by step
type Statistics struct {
	SuccessCount int
	FailedCount  int
	FailedByStep map[Step]int
}

// Ledger is a single-writer, file-backed outcome log.
// Concurrent runs against the same working directory are refused at Open
type Ledger struct {
	mu    sync.Mutex
	dir   string
	runID string
	f     *os.File
	w     *bufio.Writer
	state map[string]Entry
}

// Open creates or resumes the ledger under workdir.
// A second concurrent Open against the same directory fails fast with a
// Conflict error; stale locks are reported, not silently stolen
func Open(workdir string) (*Ledger, error) {
	if workdir == "" {
		return nil, perr.InvalidArgf("ledger: empty working directory")
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: create workdir %s", workdir)
	}

	lockPath := filepath.Join(workdir, lockName)
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, perr.Conflictf("ledger: %s is locked by another run (remove %s if stale)", workdir, lockPath)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: acquire lock")
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	_ = lock.Close()

	l := &Ledger{
		dir:   workdir,
		runID: uuid.NewString(),
		state: make(map[string]Entry),
	}
	if err := l.replay(); err != nil {
		_ = os.Remove(lockPath)
		return nil, err
	}

	f, err := os.OpenFile(l.logPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		_ = os.Remove(lockPath)
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: open log")
	}
	l.f = f
	l.w = bufio.NewWriter(f)

	logger.Named("ledger").Debug().
		Str("workdir", workdir).
		Str("run_id", l.runID).
		Int("known_items", len(l.state)).
		Msg("ledger opened")
	return l, nil
}

// RunID identifies this ledger session; each Open gets a fresh one
func (l *Ledger) RunID() string { return l.runID }

func (l *Ledger) logPath() string { return filepath.Join(l.dir, logName) }

// replay reads the append log into memory, last entry per item wins.
// Corrupt trailing lines (torn writes) are skipped, not fatal
func (l *Ledger) replay() error {
	f, err := os.Open(l.logPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: read log")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			logger.Named("ledger").Warn().Err(err).Msg("skipping corrupt ledger line")
			continue
		}
		if e.ItemID == "" {
			continue
		}
		l.state[e.ItemID] = e
	}
	return sc.Err()
}

// Record upserts the outcome for an item and appends it to the log.
// Recording a success for an item previously marked failed clears its failed
// status; repeated failures on the same item overwrite rather than accumulate
func (l *Ledger) Record(itemID string, ok bool, step Step) error {
	if itemID == "" {
		return perr.InvalidArgf("ledger: empty item id")
	}
	if ok {
		step = ""
	}
	e := Entry{ItemID: itemID, OK: ok, Step: step, RunID: l.runID, At: time.Now().UTC()}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state[itemID] = e

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: append")
	}
	return l.w.Flush()
}

// Succeeded reports whether the item has a recorded success
func (l *Ledger) Succeeded(itemID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.state[itemID]
	return ok && e.OK
}

// Statistics aggregates the current state by outcome and failure step
func (l *Ledger) Statistics() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Statistics{FailedByStep: make(map[Step]int)}
	for _, e := range l.state {
		if e.OK {
			st.SuccessCount++
			continue
		}
		st.FailedCount++
		st.FailedByStep[e.Step]++
	}
	return st
}

// PendingRetries returns the sorted ids of items whose last outcome was a
// failure. Items already marked success are never returned, so a retry run
// can never reprocess them
func (l *Ledger) PendingRetries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for id, e := range l.state {
		if !e.OK {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Compact rewrites the append log to its deduped in-memory form.
// Useful after long retry churn; the read path does not require it
func (l *Ledger) Compact() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Flush(); err != nil {
		return err
	}

	tmp := l.logPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: compact")
	}
	w := bufio.NewWriter(f)

	ids := make([]string, 0, len(l.state))
	for id := range l.state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b, err := json.Marshal(l.state[id])
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	_ = l.f.Close()
	if err := os.Rename(tmp, l.logPath()); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: swap compacted log")
	}
	nf, err := os.OpenFile(l.logPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "ledger: reopen log")
	}
	l.f = nf
	l.w = bufio.NewWriter(nf)
	return nil
}

// Close flushes the log and releases the single-writer lock
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var first error
	if l.w != nil {
		if err := l.w.Flush(); err != nil {
			first = err
		}
	}
	if l.f != nil {
		if err := l.f.Close(); err != nil && first == nil {
			first = err
		}
		l.f = nil
	}
	if err := os.Remove(filepath.Join(l.dir, lockName)); err != nil && first == nil {
		first = err
	}
	return first
}
