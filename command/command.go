// Package command defines the wire model for mutations against the remote
// tabular store: the closed operation set, the command payload, and the
// encoder that turns a domain mutation into a deliverable command.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Operation identifies one command kind against the remote store.
type Operation string

const (
	OpRead        Operation = "read"
	OpReadRaw     Operation = "read_raw"
	OpAppend      Operation = "append"
	OpAppendRaw   Operation = "append_raw"
	OpAppendBatch Operation = "append_batch"
	OpUpdate      Operation = "update"
	OpUpdateByField Operation = "update_by_field"
	OpUpdateRaw   Operation = "update_raw"
	OpWriteRaw    Operation = "write_raw"
	OpDelete      Operation = "delete"
	OpList        Operation = "list"
)

// Operations lists every supported operation.
func Operations() []Operation {
	return []Operation{
		OpRead, OpReadRaw, OpAppend, OpAppendRaw, OpAppendBatch,
		OpUpdate, OpUpdateByField, OpUpdateRaw, OpWriteRaw, OpDelete, OpList,
	}
}

// Class partitions operations by the access level they require.
type Class int

const (
	// ClassRead operations never change remote state.
	ClassRead Class = iota
	// ClassWrite operations mutate rows and require scope membership.
	ClassWrite
	// ClassAdmin operations are destructive and require owner or manager.
	ClassAdmin
)

func (c Class) String() string {
	switch c {
	case ClassRead:
		return "read"
	case ClassWrite:
		return "write"
	case ClassAdmin:
		return "admin"
	}
	return "unknown"
}

// Class returns the access class of an operation. Unknown operations are
// treated as write-class so an unrecognized action can never bypass the
// membership check.
func (op Operation) Class() Class {
	switch op {
	case OpRead, OpReadRaw, OpList:
		return ClassRead
	case OpAppend, OpAppendRaw, OpAppendBatch, OpUpdate, OpUpdateByField, OpUpdateRaw:
		return ClassWrite
	case OpDelete, OpWriteRaw:
		return ClassAdmin
	}
	return ClassWrite
}

// Known reports whether op is part of the closed operation set.
func (op Operation) Known() bool {
	switch op {
	case OpRead, OpReadRaw, OpAppend, OpAppendRaw, OpAppendBatch,
		OpUpdate, OpUpdateByField, OpUpdateRaw, OpWriteRaw, OpDelete, OpList:
		return true
	}
	return false
}

// ErrInvalid is the sentinel for malformed commands. Typed validation errors
// match it through errors.Is.
var ErrInvalid = errors.New("invalid command")

// ValidationError describes a malformed command. It is raised synchronously
// before any I/O and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid command: " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Command is one intended mutation or read against the remote tabular store.
// It is the unit persisted by the durable queue, so every field must survive
// a JSON round trip.
type Command struct {
	// ID is a process-assigned uuid used for audit correlation. It is not
	// the durable queue id, which is local and auto-incremented.
	ID string `json:"id,omitempty"`

	Operation Operation `json:"operation"`

	// Target is the named tab/sheet within the remote store.
	Target string `json:"target,omitempty"`

	// SpreadsheetID overrides the executor's default remote store when set.
	SpreadsheetID string `json:"spreadsheetId,omitempty"`

	// ScopeID is the business context the command and its access check are
	// evaluated against. Required for write- and admin-class operations.
	ScopeID string `json:"scopeId,omitempty"`

	// ActorID is the principal that issued the command. It rides along so a
	// command replayed from the queue can still be attributed in the audit
	// log.
	ActorID string `json:"actorId,omitempty"`

	// Record holds field-keyed values for append and update.
	Record map[string]any `json:"record,omitempty"`

	// Records holds field-keyed rows for append_batch.
	Records []map[string]any `json:"records,omitempty"`

	// Values holds one positional row for append_raw and update_raw.
	Values []any `json:"values,omitempty"`

	// Grid holds the full replacement grid for write_raw.
	Grid [][]any `json:"grid,omitempty"`

	// RowIndex addresses a 0-based data row for update and delete.
	RowIndex *int `json:"rowIndex,omitempty"`

	// MatchColumn/MatchValue locate a row for update_by_field.
	MatchColumn string `json:"matchColumn,omitempty"`
	MatchValue  string `json:"matchValue,omitempty"`

	// MatchColumnIndex locates a row positionally for update_raw.
	MatchColumnIndex *int `json:"matchColumnIndex,omitempty"`
}

// Validate checks the command shape before any I/O. It reports only
// malformed input; authorization and remote state are checked later.
func (c *Command) Validate() error {
	if c == nil {
		return invalidf("nil command")
	}
	if strings.TrimSpace(string(c.Operation)) == "" {
		return invalidf("operation is required")
	}
	if !c.Operation.Known() {
		return invalidf("unknown operation %q", c.Operation)
	}
	if c.Operation != OpList && strings.TrimSpace(c.Target) == "" {
		return invalidf("target is required for %s", c.Operation)
	}
	switch c.Operation {
	case OpAppend:
		if len(c.Record) == 0 {
			return invalidf("append requires a record")
		}
	case OpAppendRaw:
		if len(c.Values) == 0 {
			return invalidf("append_raw requires values")
		}
	case OpAppendBatch:
		if len(c.Records) == 0 {
			return invalidf("append_batch requires records")
		}
	case OpUpdate:
		if c.RowIndex == nil || *c.RowIndex < 0 {
			return invalidf("update requires a non-negative rowIndex")
		}
		if len(c.Record) == 0 {
			return invalidf("update requires a record")
		}
	case OpUpdateByField:
		if strings.TrimSpace(c.MatchColumn) == "" {
			return invalidf("update_by_field requires matchColumn")
		}
		if len(c.Record) == 0 {
			return invalidf("update_by_field requires a record")
		}
	case OpUpdateRaw:
		if c.MatchColumnIndex == nil || *c.MatchColumnIndex < 0 {
			return invalidf("update_raw requires a non-negative matchColumnIndex")
		}
		if len(c.Values) == 0 {
			return invalidf("update_raw requires values")
		}
	case OpWriteRaw:
		if len(c.Grid) == 0 {
			return invalidf("write_raw requires a grid")
		}
	case OpDelete:
		if c.RowIndex == nil || *c.RowIndex < 0 {
			return invalidf("delete requires a non-negative rowIndex")
		}
	}
	return nil
}
