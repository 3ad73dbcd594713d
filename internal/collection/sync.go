// Package collection keeps the local copy of the remote rainfall collection
// and its analytics summary.
//
// The Syncer is the only writer of the cached snapshot. It fetches the record
// collection and the analytics summary as a pair (a cycle), either on a
// polling tick or on demand through Invalidate. Each half of a cycle is applied
// independently: when one request fails the other half still lands and the
// failed half keeps its previous value (stale-but-available). A polling tick
// that fires while any cycle is in flight is dropped rather than queued.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"rainfall-dashboard/internal/metrics"
	"rainfall-dashboard/internal/notify"
	"rainfall-dashboard/internal/rainfall"
)

// ErrDiscarded is returned when a cycle finished after the view was torn down
// or the session changed. Its result was not applied.
var ErrDiscarded = errors.New("fetch result discarded")

// ErrStopped is returned by StartPolling once StopPolling has run.
var ErrStopped = errors.New("sync stopped")

// Source is the remote collaborator.
type Source interface {
	Records(ctx context.Context) ([]rainfall.Record, error)
	Analytics(ctx context.Context) (rainfall.Summary, error)
}

// Guard reports whether the session a cycle started under is still current.
type Guard interface {
	Epoch() uint64
	Active(epoch uint64) bool
}

// TickerFunc starts a ticker and returns its channel and stop function.
type TickerFunc func(interval time.Duration) (<-chan time.Time, func())

func realTicker(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// Snapshot is what the UI renders. Version only moves when the content does.
type Snapshot struct {
	Records   []rainfall.Record
	Analytics rainfall.Summary
	Version   uint64
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(s *Syncer) { s.notifier = notifier }
}

func WithMetrics(m *metrics.Sync) Option {
	return func(s *Syncer) { s.metrics = m }
}

func WithGuard(guard Guard) Option {
	return func(s *Syncer) { s.guard = guard }
}

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(fn TickerFunc) Option {
	return func(s *Syncer) { s.newTicker = fn }
}

// Syncer owns the cached snapshot.
type Syncer struct {
	source    Source
	guard     Guard
	notifier  notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Sync
	newTicker TickerFunc

	mu           sync.RWMutex
	snapshot     Snapshot
	recordsGen   uint64
	analyticsGen uint64
	listeners    []func(Snapshot)

	generation atomic.Uint64
	inFlight   atomic.Int32
	closed     atomic.Bool

	pollMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Syncer reading from source.
func New(source Source, opts ...Option) *Syncer {
	s := &Syncer{
		source:    source,
		notifier:  notify.Discard,
		newTicker: realTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewSync(nil)
	}
	return s
}

// Snapshot returns a copy of the cached state.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Subscribe registers fn to be called with every changed snapshot.
func (s *Syncer) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// InFlight reports whether any cycle is running.
func (s *Syncer) InFlight() bool {
	return s.inFlight.Load() > 0
}

// FetchAll runs one cycle and returns when both requests have resolved. The
// returned error joins the failures of the two halves.
func (s *Syncer) FetchAll(ctx context.Context) error {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	return s.cycle(ctx)
}

// Invalidate runs one out-of-band cycle, used after a successful mutation so
// the view reflects the server rather than a guess. It does not wait for, and
// is not skipped by, a polling cycle already in flight.
func (s *Syncer) Invalidate(ctx context.Context) error {
	return s.FetchAll(ctx)
}

// StartPolling fetches immediately and then on every tick of interval.
func (s *Syncer) StartPolling(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.closed.Load() {
		return ErrStopped
	}
	if s.cancel != nil {
		return errors.New("polling already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticks, stopTicker := s.newTicker(interval)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, ticks, stopTicker)
	s.logger.Debug("sync polling started", "interval", interval)
	return nil
}

// StopPolling cancels the schedule and marks the view as gone: any cycle
// still in flight completes as a no-op. Calling it again does nothing.
func (s *Syncer) StopPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.closed.Swap(true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Debug("sync polling stopped")
}

func (s *Syncer) loop(ctx context.Context, ticks <-chan time.Time, stopTicker func()) {
	defer close(s.done)
	defer stopTicker()
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.tick(ctx)
		}
	}
}

// tick dispatches a cycle unless one is already running.
func (s *Syncer) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(0, 1) {
		s.metrics.SkippedTicks.Inc()
		s.logger.Debug("sync tick skipped, cycle in flight")
		return
	}
	go func() {
		defer s.inFlight.Add(-1)
		_ = s.cycle(ctx)
	}()
}

func (s *Syncer) cycle(ctx context.Context) error {
	gen := s.generation.Add(1)
	var epoch uint64
	if s.guard != nil {
		epoch = s.guard.Epoch()
	}

	var (
		records      []rainfall.Record
		summary      rainfall.Summary
		recordsErr   error
		analyticsErr error
		wg           sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		records, recordsErr = s.source.Records(ctx)
	}()
	go func() {
		defer wg.Done()
		summary, analyticsErr = s.source.Analytics(ctx)
	}()
	wg.Wait()

	if s.closed.Load() || ctx.Err() != nil || (s.guard != nil && !s.guard.Active(epoch)) {
		s.metrics.Cycles.WithLabelValues("discarded").Inc()
		return ErrDiscarded
	}

	s.apply(gen, records, recordsErr == nil, summary, analyticsErr == nil)

	err := errors.Join(recordsErr, analyticsErr)
	switch {
	case err == nil:
		s.metrics.Cycles.WithLabelValues("ok").Inc()
		return nil
	case recordsErr != nil && analyticsErr != nil:
		s.metrics.Cycles.WithLabelValues("failed").Inc()
	default:
		s.metrics.Cycles.WithLabelValues("partial").Inc()
	}
	s.logger.Warn("sync cycle failed", "generation", gen, "records_error", recordsErr, "analytics_error", analyticsErr)
	s.notifier.Notify(notify.Failure(err, "Error fetching data"))
	return err
}

// apply installs the halves that succeeded, in one critical section, unless
// a newer cycle has already written them.
func (s *Syncer) apply(gen uint64, records []rainfall.Record, haveRecords bool, summary rainfall.Summary, haveSummary bool) {
	s.mu.Lock()
	changed := false
	if haveRecords && gen > s.recordsGen {
		s.recordsGen = gen
		if !slices.Equal(s.snapshot.Records, records) {
			s.snapshot.Records = records
			changed = true
		}
	}
	if haveSummary && gen > s.analyticsGen {
		s.analyticsGen = gen
		if s.snapshot.Analytics != summary {
			s.snapshot.Analytics = summary
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	s.snapshot.Version++
	snapshot := s.copyLocked()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (s *Syncer) copyLocked() Snapshot {
	out := s.snapshot
	out.Records = slices.Clone(s.snapshot.Records)
	return out
}
