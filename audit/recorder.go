package audit

import (
	"context"
	"log"

	"github.com/dealerops/sheetbridge/command"
)

const (
	// OutcomeDelivered marks an entry for a mutation the remote store accepted.
	OutcomeDelivered = "delivered"
	// OutcomeDeadLettered marks an entry for a mutation abandoned after
	// exhausting retries or a permanent refusal. Transient failures along
	// the way are not audited.
	OutcomeDeadLettered = "dead_lettered"
)

// ActionFor maps an operation onto the coarse action the audit log shows.
// Read-class operations map to "" and are not recorded.
func ActionFor(op command.Operation) string {
	switch op {
	case command.OpAppend, command.OpAppendRaw, command.OpAppendBatch:
		return "add_row"
	case command.OpUpdate, command.OpUpdateByField, command.OpUpdateRaw:
		return "update_row"
	case command.OpWriteRaw:
		return "replace_sheet"
	case command.OpDelete:
		return "delete_row"
	default:
		return ""
	}
}

// Recorder writes audit entries for mutation outcomes. A nil Recorder, or
// one over a nil Store, records nothing.
type Recorder struct {
	store Store
}

// NewRecorder returns a Recorder over store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Delivered records a successfully applied mutation.
func (r *Recorder) Delivered(ctx context.Context, actorID, role string, cmd command.Command) {
	r.record(ctx, actorID, role, cmd, OutcomeDelivered, "")
}

// DeadLettered records a mutation that was abandoned, with the final error.
func (r *Recorder) DeadLettered(ctx context.Context, actorID, role string, cmd command.Command, cause error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	r.record(ctx, actorID, role, cmd, OutcomeDeadLettered, detail)
}

func (r *Recorder) record(ctx context.Context, actorID, role string, cmd command.Command, outcome, detail string) {
	if r == nil || r.store == nil {
		return
	}
	action := ActionFor(cmd.Operation)
	if action == "" {
		return
	}
	rec := Record{
		ActorID:       actorID,
		ScopeID:       cmd.ScopeID,
		Action:        action,
		Operation:     string(cmd.Operation),
		Target:        cmd.Target,
		SpreadsheetID: cmd.SpreadsheetID,
		CommandID:     cmd.ID,
		Role:          role,
		Outcome:       outcome,
		Detail:        detail,
	}
	if err := r.store.Record(ctx, rec); err != nil {
		log.Printf("[audit] failed to record %s %s: %v", rec.Action, rec.Target, err)
	}
}
