package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultProbeInterval    = 30 * time.Second
)

// Checker is the health probe the Monitor polls while offline, typically a
// cheap metadata fetch against the remote service.
type Checker func(ctx context.Context) error

// Monitor derives connectivity from delivery outcomes: a run of consecutive
// transient failures flips it offline, any success flips it back online.
// While offline it polls the Checker so recovery is noticed even when no
// new commands arrive.
type Monitor struct {
	manual    *Manual
	check     Checker
	threshold int
	interval  time.Duration

	mu       sync.Mutex
	failures int
	cancel   context.CancelFunc
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithFailureThreshold sets how many consecutive transient failures flip the
// monitor offline.
func WithFailureThreshold(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.threshold = n
		}
	}
}

// WithProbeInterval sets how often the Checker is polled while offline.
func WithProbeInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// NewMonitor returns a Monitor that starts online. check may be nil, in
// which case recovery is only observed through ReportSuccess.
func NewMonitor(check Checker, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		manual:    NewManual(true),
		check:     check,
		threshold: defaultFailureThreshold,
		interval:  defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online() bool { return m.manual.Online() }

func (m *Monitor) Subscribe(fn func(bool)) func() { return m.manual.Subscribe(fn) }

// ReportSuccess records a delivered command: the failure run resets and the
// monitor goes online.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()
	m.manual.SetOnline(true)
}

// ReportFailure records a transient delivery failure. Permanent rejections
// are not connectivity signals and must not be reported here.
func (m *Monitor) ReportFailure() {
	m.mu.Lock()
	m.failures++
	tripped := m.failures >= m.threshold
	m.mu.Unlock()
	if tripped {
		m.manual.SetOnline(false)
	}
}

// Start launches the background health poll. It returns immediately; Stop
// or ctx cancellation ends the loop.
func (m *Monitor) Start(ctx context.Context) {
	if m.check == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.manual.Online() {
					continue
				}
				if err := m.check(ctx); err != nil {
					log.Printf("[connectivity] health probe failed: %v", err)
					continue
				}
				m.ReportSuccess()
			}
		}
	}()
}

// Stop ends the background health poll.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
