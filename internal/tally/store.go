// Package tally owns the date -> count mapping and keeps it in step with
// durable storage.
//
// Every operation runs under one lock that is held across the durable write,
// so overlapping callers are serialised and cannot lose each other's updates.
// Subscribers run after the lock is released; use Snapshot.Version to order
// notifications from concurrent callers.
package tally

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/storage"
)

// Outcome labels passed to an Observer.
const (
	OutcomeOK           = "ok"
	OutcomeNoop         = "noop"
	OutcomeInvalid      = "invalid"
	OutcomeNotReady     = "not_ready"
	OutcomeCorrupt      = "corrupt"
	OutcomePersistError = "persist_error"
	OutcomeReadError    = "read_error"
	OutcomeError        = "error"
)

// Observer receives one call per operation, e.g. for metrics.
type Observer interface {
	ObserveOperation(op Op, outcome string, elapsed time.Duration)
}

type Store struct {
	kv       storage.KeyValueStore
	key      string
	now      func() time.Time
	loc      *time.Location
	logger   *applog.Logger
	changes  *applog.StructuredLogger
	observer Observer

	mu      sync.Mutex
	counts  core.Mapping
	ready   bool
	version uint64

	subMu   sync.Mutex
	subs    map[int]func(Change)
	subKeys []int
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the storage key. Defaults to storage.DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock sets the source of "now" used to derive today's date.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the time zone "today" is computed in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

func WithLogger(logger *applog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New returns an uninitialised store. Call Load before any mutation.
func New(kv storage.KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    storage.DefaultKey,
		now:    time.Now,
		loc:    time.UTC,
		counts: core.Mapping{},
		subs:   make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentTally)
	s.changes = applog.NewStructuredLogger(s.logger)
	return s
}

// Today returns the canonical date for the store clock.
func (s *Store) Today() string {
	return core.Today(s.now(), s.loc)
}

// Ready reports whether Load has completed.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Snapshot returns the current read-only projection.
func (s *Store) Snapshot() Snapshot {
	today := s.Today()
	s.mu.Lock()
	defer s.mu.Unlock()
	return newSnapshot(s.ready, s.version, today, s.counts)
}

// Load reads the persisted mapping. A missing value yields an empty mapping.
// An undecodable value also yields an empty, ready store, and the error wraps
// ErrCorruptState; the raw value is copied to "<key>.corrupt" first so it is not
// lost on the next write. A storage read error leaves the store unloaded.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	today := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.observe(OpLoad, OutcomeReadError, start)
		s.logger.ErrorContext(ctx, "Failed to read tally state",
			applog.FieldStorageKey, s.key,
			applog.FieldError, err)
		return newSnapshot(s.ready, s.version, today, s.counts), fmt.Errorf("read %s: %w", s.key, err)
	}

	if !ok {
		s.counts = core.Mapping{}
		s.ready = true
		s.observe(OpLoad, OutcomeOK, start)
		s.logger.InfoContext(ctx, "No tally state stored yet, starting empty", applog.FieldStorageKey, s.key)
		return newSnapshot(true, s.version, today, s.counts), nil
	}

	counts, err := core.DecodeMapping(data)
	if err != nil {
		s.counts = core.Mapping{}
		s.ready = true
		s.observe(OpLoad, OutcomeCorrupt, start)

		backupKey := s.key + ".corrupt"
		if berr := s.kv.Put(ctx, backupKey, data); berr != nil {
			s.logger.ErrorContext(ctx, "Failed to back up corrupt tally state",
				applog.FieldStorageKey, backupKey,
				applog.FieldError, berr)
		}
		s.logger.WarnContext(ctx, "Tally state is corrupt, starting empty",
			applog.FieldStorageKey, s.key,
			"backup_key", backupKey,
			applog.FieldErrorType, applog.ErrorTypeCorruptState,
			applog.FieldError, err)
		return newSnapshot(true, s.version, today, s.counts), fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	s.counts = counts
	s.ready = true
	s.observe(OpLoad, OutcomeOK, start)

	snap := newSnapshot(true, s.version, today, s.counts)
	s.logger.InfoContext(ctx, "Tally state loaded",
		applog.FieldStorageKey, s.key,
		applog.FieldDays, len(snap.Counts),
		applog.FieldTodayCount, snap.TodayCount,
		applog.FieldAverage, snap.Average)
	return snap, nil
}

// Increment adds one to the count for today and persists the mapping.
func (s *Store) Increment(ctx context.Context, today string) (Snapshot, error) {
	start := time.Now()
	date, err := core.ParseDate(today)
	if err != nil {
		s.observe(OpIncrement, OutcomeInvalid, start)
		return s.Snapshot(), fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}

	snap, change, err := s.mutate(ctx, OpIncrement, date, date, func(m core.Mapping) (float64, bool) {
		m[date]++
		return m[date], true
	})
	s.finish(ctx, OpIncrement, start, change, err)
	return snap, err
}

// IncrementToday increments the count for the store clock's current date.
func (s *Store) IncrementToday(ctx context.Context) (Snapshot, error) {
	return s.Increment(ctx, s.Today())
}

// Upsert sets the count for date, overwriting any existing value. The count
// is free text as typed by the user. Invalid input changes nothing and
// returns an error wrapping ErrInvalidEntry alongside the unchanged snapshot.
func (s *Store) Upsert(ctx context.Context, date, count string) (Snapshot, error) {
	start := time.Now()
	if !s.Ready() {
		s.observe(OpUpsert, OutcomeNotReady, start)
		return s.Snapshot(), ErrNotReady
	}

	key, value, err := core.DayEntry{Date: date, Count: count}.Parse()
	if err != nil {
		s.observe(OpUpsert, OutcomeInvalid, start)
		s.logger.DebugContext(ctx, "Ignoring invalid tally entry",
			applog.FieldDate, date,
			applog.FieldCount, count,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return s.Snapshot(), fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}

	snap, change, err := s.mutate(ctx, OpUpsert, key, s.Today(), func(m core.Mapping) (float64, bool) {
		m[key] = value
		return value, true
	})
	s.finish(ctx, OpUpsert, start, change, err)
	return snap, err
}

// Delete removes the entry for date. Deleting an absent date changes nothing
// and writes nothing.
func (s *Store) Delete(ctx context.Context, date string) (Snapshot, error) {
	start := time.Now()
	snap, change, err := s.mutate(ctx, OpDelete, date, s.Today(), func(m core.Mapping) (float64, bool) {
		if _, ok := m[date]; !ok {
			return 0, false
		}
		delete(m, date)
		return 0, true
	})
	s.finish(ctx, OpDelete, start, change, err)
	return snap, err
}

// Subscribe registers fn to be called after every committed mutation. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subKeys = append(s.subKeys, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			for i, k := range s.subKeys {
				if k == id {
					s.subKeys = append(s.subKeys[:i], s.subKeys[i+1:]...)
					break
				}
			}
		})
	}
}

// mutate applies fn to a copy of the mapping and, if fn reports a change,
// persists the whole copy. The copy replaces the in-memory mapping even when
// the write fails. The returned Change is nil when nothing changed.
func (s *Store) mutate(ctx context.Context, op Op, date, today string, fn func(core.Mapping) (float64, bool)) (Snapshot, *Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return newSnapshot(false, s.version, today, s.counts), nil, ErrNotReady
	}

	next := s.counts.Clone()
	_, existed := next[date]
	count, changed := fn(next)
	if !changed {
		return newSnapshot(true, s.version, today, s.counts), nil, nil
	}

	data, err := core.EncodeMapping(next)
	if err != nil {
		return newSnapshot(true, s.version, today, s.counts), nil, fmt.Errorf("encode tally: %w", err)
	}

	perr := s.kv.Put(ctx, s.key, data)
	s.counts = next
	s.version++

	snap := newSnapshot(true, s.version, today, s.counts)
	change := &Change{
		Op:        op,
		Date:      date,
		Count:     count,
		Existed:   existed,
		Persisted: perr == nil,
		At:        s.now(),
		Snapshot:  snap,
	}
	if perr != nil {
		return snap, change, fmt.Errorf("%w: %w", ErrPersistence, perr)
	}
	return snap, change, nil
}

func (s *Store) finish(ctx context.Context, op Op, start time.Time, change *Change, err error) {
	switch {
	case errors.Is(err, ErrNotReady):
		s.observe(op, OutcomeNotReady, start)
	case errors.Is(err, ErrPersistence):
		s.observe(op, OutcomePersistError, start)
		snap := change.Snapshot
		s.changes.LogTallyChange(ctx, string(op), change.Date, change.Count,
			snap.TodayCount, snap.Average, len(snap.Counts), err)
	case err != nil:
		s.observe(op, OutcomeError, start)
		s.logger.ErrorContext(ctx, "Tally operation failed",
			applog.FieldOperation, string(op),
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldError, err)
	case change == nil:
		s.observe(op, OutcomeNoop, start)
		s.logger.DebugContext(ctx, "Tally operation changed nothing", applog.FieldOperation, string(op))
	default:
		s.observe(op, OutcomeOK, start)
		snap := change.Snapshot
		s.changes.LogTallyChange(ctx, string(op), change.Date, change.Count,
			snap.TodayCount, snap.Average, len(snap.Counts), nil)
	}

	if change != nil {
		s.notify(*change)
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subKeys))
	for _, k := range s.subKeys {
		fns = append(fns, s.subs[k])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) observe(op Op, outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveOperation(op, outcome, time.Since(start))
	}
}
