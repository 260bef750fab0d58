package audit

import (
	"context"
	"sync"
	"time"
)

// AsyncReader decorates a Reader so Record never blocks the mutation path:
// writes are buffered and flushed by a background goroutine, and dropped
// under pressure rather than stalling delivery. Reads go straight through.
type AsyncReader struct {
	downstream Reader
	queue      chan Record
	wg         sync.WaitGroup
	once       sync.Once

	// mu orders in-flight Record calls against Close: senders hold the read
	// lock across the channel send, Close takes the write lock before
	// closing the channel.
	mu     sync.RWMutex
	closed bool
}

// NewAsyncReader wraps downstream with a buffered writer. buffer <= 0 uses
// a default of 256.
func NewAsyncReader(downstream Reader, buffer int) *AsyncReader {
	if buffer <= 0 {
		buffer = 256
	}
	ar := &AsyncReader{
		downstream: downstream,
		queue:      make(chan Record, buffer),
	}
	ar.wg.Add(1)
	go ar.loop()
	return ar
}

func (a *AsyncReader) Record(ctx context.Context, rec Record) error {
	if a == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil // store is closing, drop silently
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		// Drop on pressure to avoid blocking the dispatch hot path.
		return nil
	}
}

func (a *AsyncReader) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	return a.downstream.List(ctx, limit, offset)
}

// Close drains buffered records, then closes the downstream store.
func (a *AsyncReader) Close() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.queue)
		a.wg.Wait()
	})
	return a.downstream.Close()
}

func (a *AsyncReader) loop() {
	defer a.wg.Done()
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.downstream.Record(ctx, rec)
		cancel()
	}
}
