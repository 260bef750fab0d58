// Package scheduler drains the durable queue: periodically, on demand, and
// whenever connectivity returns. Commands in one scope replay strictly in
// order; a command that is not yet due, or fails again, blocks the rest of
// its scope for that pass while other scopes keep draining.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dealerops/sheetbridge/command"
	"github.com/dealerops/sheetbridge/connectivity"
	"github.com/dealerops/sheetbridge/queue"
	"github.com/dealerops/sheetbridge/sheets"
)

var tracer = otel.Tracer("sheetbridge/scheduler")

// Executor performs a command against the remote store.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (*sheets.Result, error)
}

// DeadLetterHandler is invoked once when a queued command is abandoned,
// either after exhausting its retries or on a permanent remote refusal.
type DeadLetterHandler func(ctx context.Context, entry queue.QueuedCommand, err error)

// DeliveredHandler is invoked once when a queued command is finally accepted
// by the remote store.
type DeliveredHandler func(ctx context.Context, entry queue.QueuedCommand)

// Summary reports one ProcessQueue pass.
type Summary struct {
	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`

	// Remaining is the queue depth after the pass, including entries that
	// were skipped because they were not yet due.
	Remaining int `json:"remaining"`
}

// Scheduler replays queued commands against the remote store.
type Scheduler struct {
	store  queue.Store
	exec   Executor
	policy RetryPolicy

	onDeadLetter DeadLetterHandler
	onDelivered  DeliveredHandler
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[int64]bool

	cron  *cron.Cron
	unsub func()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Scheduler) { s.policy = normalizeRetryPolicy(p) }
}

// WithDeadLetterHandler registers the abandonment callback.
func WithDeadLetterHandler(fn DeadLetterHandler) Option {
	return func(s *Scheduler) { s.onDeadLetter = fn }
}

// WithDeliveredHandler registers the replayed-delivery callback.
func WithDeliveredHandler(fn DeliveredHandler) Option {
	return func(s *Scheduler) { s.onDelivered = fn }
}

// WithClock injects the time source. Tests use it to make entries due.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Scheduler over the given queue and executor.
func New(store queue.Store, exec Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		exec:     exec,
		policy:   defaultRetryPolicy(),
		now:      time.Now,
		inFlight: map[int64]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessQueue makes one pass over the queue in FIFO order. Concurrent
// passes are safe: an entry already being attempted by another pass is
// skipped, so a command is never delivered twice by overlapping triggers.
func (s *Scheduler) ProcessQueue(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "scheduler.process_queue")
	defer span.End()

	entries, err := s.store.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	blocked := map[string]bool{}
	now := s.now()

	for _, entry := range entries {
		if blocked[entry.ScopeID] {
			continue
		}
		if !s.claim(entry.ID) {
			blocked[entry.ScopeID] = true
			continue
		}
		if !entry.Due(now) {
			s.release(entry.ID)
			blocked[entry.ScopeID] = true
			continue
		}

		result := s.attempt(ctx, entry)
		s.release(entry.ID)

		switch result {
		case attemptDelivered:
			summary.Processed++
		case attemptFailed:
			summary.Failed++
			blocked[entry.ScopeID] = true
		case attemptDeadLettered:
			summary.DeadLettered++
		}
	}

	if remaining, err := s.store.Count(ctx); err == nil {
		summary.Remaining = remaining
	}

	span.SetAttributes(
		attribute.Int("queue.processed", summary.Processed),
		attribute.Int("queue.failed", summary.Failed),
		attribute.Int("queue.dead_lettered", summary.DeadLettered),
		attribute.Int("queue.remaining", summary.Remaining),
	)
	return summary, nil
}

type attemptResult int

const (
	attemptDelivered attemptResult = iota
	attemptFailed
	attemptDeadLettered
)

func (s *Scheduler) attempt(ctx context.Context, entry queue.QueuedCommand) attemptResult {
	_, err := s.exec.Execute(ctx, entry.Payload)
	if err == nil {
		if removeErr := s.store.RemoveByID(ctx, entry.ID); removeErr != nil {
			log.Printf("[scheduler] delivered %d but failed to dequeue: %v", entry.ID, removeErr)
		}
		if s.onDelivered != nil {
			s.onDelivered(ctx, entry)
		}
		return attemptDelivered
	}

	if !sheets.IsTransient(err) {
		// The remote store refused the command outright; retrying the same
		// payload cannot succeed.
		log.Printf("[scheduler] command %d permanently rejected: %v", entry.ID, err)
		return s.deadLetter(ctx, entry, err)
	}

	retries := entry.Retries + 1
	if retries > s.policy.MaxRetries {
		log.Printf("[scheduler] command %d exhausted %d retries: %v", entry.ID, s.policy.MaxRetries, err)
		return s.deadLetter(ctx, entry, err)
	}

	nextRetryAt := s.now().Add(s.policy.backoffForRetry(retries))
	if markErr := s.store.MarkRetry(ctx, entry.ID, retries, nextRetryAt, err.Error()); markErr != nil {
		log.Printf("[scheduler] failed to record retry for %d: %v", entry.ID, markErr)
	}
	return attemptFailed
}

func (s *Scheduler) deadLetter(ctx context.Context, entry queue.QueuedCommand, cause error) attemptResult {
	if err := s.store.RemoveByID(ctx, entry.ID); err != nil {
		log.Printf("[scheduler] failed to dead-letter %d: %v", entry.ID, err)
	}
	if s.onDeadLetter != nil {
		s.onDeadLetter(ctx, entry, cause)
	}
	return attemptDeadLettered
}

func (s *Scheduler) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) release(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// Start begins periodic draining every interval and, when probe is non-nil,
// an immediate drain on each offline-to-online transition.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, probe connectivity.Probe) error {
	s.cron = cron.New()
	spec := "@every " + interval.String()
	if _, err := s.cron.AddFunc(spec, func() {
		if summary, err := s.ProcessQueue(ctx); err != nil {
			log.Printf("[scheduler] queue pass failed: %v", err)
		} else if summary.Processed+summary.Failed+summary.DeadLettered > 0 {
			log.Printf("[scheduler] queue pass: processed=%d failed=%d dead_lettered=%d",
				summary.Processed, summary.Failed, summary.DeadLettered)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()

	if probe != nil {
		s.unsub = probe.Subscribe(func(online bool) {
			if !online {
				return
			}
			go func() {
				if _, err := s.ProcessQueue(ctx); err != nil {
					log.Printf("[scheduler] drain on reconnect failed: %v", err)
				}
			}()
		})
	}
	return nil
}

// Stop halts the periodic drain and detaches from the probe.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}
