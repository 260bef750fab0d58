// Package audit records who changed what. Entries are written for delivered
// mutations and for commands abandoned after retries; reads are not audited.
// Recording is fire-and-forget: an audit failure is logged, never propagated
// into the mutation path.
package audit

import (
	"context"
	"time"
)

// Record is one audit write.
type Record struct {
	ActorID       string
	ScopeID       string
	Action        string
	Operation     string
	Target        string
	SpreadsheetID string
	CommandID     string
	Role          string
	// Outcome is "delivered" or "dead_lettered".
	Outcome string
	Detail  string
}

// Entry is one stored audit row.
type Entry struct {
	ID            int64     `json:"id"`
	ActorID       string    `json:"actorId"`
	ScopeID       string    `json:"scopeId,omitempty"`
	Action        string    `json:"action"`
	Operation     string    `json:"operation"`
	Target        string    `json:"target,omitempty"`
	SpreadsheetID string    `json:"spreadsheetId,omitempty"`
	CommandID     string    `json:"commandId,omitempty"`
	Role          string    `json:"role,omitempty"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store accepts audit writes.
type Store interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// Reader is a Store that can also page through stored entries, newest first.
type Reader interface {
	Store
	List(ctx context.Context, limit int, offset int) ([]Entry, error)
}
