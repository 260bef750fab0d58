// Package queue is the durable FIFO-per-scope store of undelivered commands.
// Entries survive process restart, are iterated in queuedAt order, and are
// removed on success or dead-letter. Removing an id that is already gone is
// a no-op so concurrent sessions draining the same storage stay safe.
package queue

import (
	"context"
	"time"

	"github.com/dealerops/sheetbridge/command"
)

// QueuedCommand is one undelivered command awaiting retry.
type QueuedCommand struct {
	// ID is the local auto-incremented queue id, distinct from the
	// command's own uuid.
	ID int64 `json:"id"`

	Payload command.Command `json:"payload"`

	ScopeID  string    `json:"scopeId,omitempty"`
	QueuedAt time.Time `json:"queuedAt"`

	// Retries counts failed re-attempts; it only ever increases.
	Retries int `json:"retries"`

	// NextRetryAt is nil until the first failed re-attempt; a nil value
	// means immediately eligible.
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`

	LastError string `json:"lastError,omitempty"`
}

// Due reports whether the entry is eligible for a retry at now.
func (q QueuedCommand) Due(now time.Time) bool {
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}

// Store is the durable queue surface. List returns entries in queuedAt
// order with id as the tiebreak; implementations must tolerate concurrent
// readers polling Count without blocking writers.
type Store interface {
	Insert(ctx context.Context, cmd command.Command) (QueuedCommand, error)
	List(ctx context.Context) ([]QueuedCommand, error)
	Count(ctx context.Context) (int, error)

	// MarkRetry records one more failed attempt: retries is the new total,
	// nextRetryAt the earliest next attempt, lastError the failure text.
	MarkRetry(ctx context.Context, id int64, retries int, nextRetryAt time.Time, lastError string) error

	// RemoveByID deletes one entry; removing an absent id is a no-op.
	RemoveByID(ctx context.Context, id int64) error

	Clear(ctx context.Context) error
	Close() error
}
