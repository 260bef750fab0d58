package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/dealerops/sheetbridge/command"
	"github.com/dealerops/sheetbridge/connectivity"
	"github.com/dealerops/sheetbridge/queue"
	"github.com/dealerops/sheetbridge/sheets"
)

type fakeExecutor struct {
	calls  int
	result *sheets.Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, _ command.Command) (*sheets.Result, error) {
	f.calls++
	return f.result, f.err
}

func appendCmd() command.Command {
	return command.Command{
		ID:        "cmd-1",
		Operation: command.OpAppend,
		Target:    "Roster",
		ScopeID:   "event-1",
		Record:    map[string]any{"Name": "J. Smith"},
	}
}

func TestDispatchDelivered(t *testing.T) {
	exec := &fakeExecutor{result: &sheets.Result{Appended: 1, Row: 4}}
	store := queue.NewMemoryStore()
	d := New(exec, store, nil, nil)

	out, err := d.Dispatch(context.Background(), appendCmd())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Status != StatusDelivered || out.Result == nil || out.Result.Row != 4 {
		t.Errorf("outcome = %+v, want delivered row 4", out)
	}
	if count, _ := store.Count(context.Background()); count != 0 {
		t.Errorf("delivered command was queued")
	}
}

func TestDispatchQueuesTransientFailure(t *testing.T) {
	exec := &fakeExecutor{err: &sheets.TransientError{Status: 502}}
	store := queue.NewMemoryStore()
	d := New(exec, store, nil, nil)

	out, err := d.Dispatch(context.Background(), appendCmd())
	if err != nil {
		t.Fatalf("transient failure should queue, not error: %v", err)
	}
	if out.Status != StatusQueued || out.QueueID == 0 {
		t.Fatalf("outcome = %+v, want queued with id", out)
	}

	entries, _ := store.List(context.Background())
	if len(entries) != 1 {
		t.Fatalf("queue holds %d entries, want 1", len(entries))
	}
	if entries[0].Retries != 0 || entries[0].NextRetryAt != nil {
		t.Errorf("fresh queue entry retries=%d nextRetryAt=%v, want 0/nil",
			entries[0].Retries, entries[0].NextRetryAt)
	}
}

func TestDispatchRejectsPermanentFailure(t *testing.T) {
	remote := &sheets.RemoteError{Status: 400, Message: "Invalid range"}
	exec := &fakeExecutor{err: remote}
	store := queue.NewMemoryStore()
	d := New(exec, store, nil, nil)

	out, err := d.Dispatch(context.Background(), appendCmd())
	if err == nil {
		t.Fatal("permanent failure should surface an error")
	}
	if out.Status != StatusRejected {
		t.Errorf("status = %q, want rejected", out.Status)
	}
	var re *sheets.RemoteError
	if !errors.As(err, &re) || re.Status != 400 {
		t.Errorf("error = %v, want the remote 400", err)
	}
	if count, _ := store.Count(context.Background()); count != 0 {
		t.Error("rejected command must never be queued")
	}
}

func TestDispatchQueuesWhileOffline(t *testing.T) {
	exec := &fakeExecutor{result: &sheets.Result{}}
	store := queue.NewMemoryStore()
	probe := connectivity.NewManual(false)
	d := New(exec, store, probe, nil)

	out, err := d.Dispatch(context.Background(), appendCmd())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Status != StatusQueued {
		t.Errorf("status = %q, want queued", out.Status)
	}
	if exec.calls != 0 {
		t.Errorf("executor was called %d times while offline, want 0", exec.calls)
	}
}

func TestDispatchRejectsOfflineRead(t *testing.T) {
	exec := &fakeExecutor{}
	store := queue.NewMemoryStore()
	probe := connectivity.NewManual(false)
	d := New(exec, store, probe, nil)

	out, err := d.Dispatch(context.Background(), command.Command{
		Operation: command.OpRead,
		Target:    "Roster",
	})
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("error = %v, want ErrOffline", err)
	}
	if out.Status != StatusRejected {
		t.Errorf("status = %q, want rejected", out.Status)
	}
	if count, _ := store.Count(context.Background()); count != 0 {
		t.Error("reads must never be queued")
	}
}

func TestDispatchRejectsInvalidCommand(t *testing.T) {
	exec := &fakeExecutor{}
	store := queue.NewMemoryStore()
	d := New(exec, store, nil, nil)

	out, err := d.Dispatch(context.Background(), command.Command{Operation: command.OpAppend})
	if !errors.Is(err, command.ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
	if out.Status != StatusRejected {
		t.Errorf("status = %q, want rejected", out.Status)
	}
	if exec.calls != 0 {
		t.Error("invalid command reached the executor")
	}
	if count, _ := store.Count(context.Background()); count != 0 {
		t.Error("invalid command was queued")
	}
}

func TestDispatchFeedsConnectivityMonitor(t *testing.T) {
	exec := &fakeExecutor{err: &sheets.TransientError{Status: 503}}
	store := queue.NewMemoryStore()
	monitor := connectivity.NewMonitor(nil, connectivity.WithFailureThreshold(2))
	d := New(exec, store, monitor, monitor)

	ctx := context.Background()
	if _, err := d.Dispatch(ctx, appendCmd()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !monitor.Online() {
		t.Fatal("one failure should not trip the monitor")
	}
	if _, err := d.Dispatch(ctx, appendCmd()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if monitor.Online() {
		t.Fatal("two failures should trip the monitor")
	}

	// Once offline, the next command queues without touching the executor.
	calls := exec.calls
	if _, err := d.Dispatch(ctx, appendCmd()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if exec.calls != calls {
		t.Error("offline dispatch still hit the executor")
	}
	if count, _ := store.Count(ctx); count != 3 {
		t.Errorf("queue count = %d, want 3", count)
	}
}
