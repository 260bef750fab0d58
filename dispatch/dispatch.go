// Package dispatch routes validated commands to the remote store, classifying
// every attempt as delivered, queued, or rejected. Rejected commands are
// never queued; queued commands are never silently dropped.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealerops/sheetbridge/command"
	"github.com/dealerops/sheetbridge/connectivity"
	"github.com/dealerops/sheetbridge/queue"
	"github.com/dealerops/sheetbridge/sheets"
)

var tracer = otel.Tracer("sheetbridge/dispatch")

// ErrOffline is returned for read-class commands while the probe reports the
// remote store unreachable. Reads are never queued.
var ErrOffline = errors.New("remote store unreachable")

// Status is the delivery classification of one dispatch attempt.
type Status string

const (
	// StatusDelivered means the remote store accepted the command.
	StatusDelivered Status = "delivered"
	// StatusQueued means delivery was deferred to the durable queue.
	StatusQueued Status = "queued"
	// StatusRejected means the remote store (or local validation) refused
	// the command; it was not queued.
	StatusRejected Status = "rejected"
)

// Outcome is the result of one dispatch attempt. Exactly one of Result,
// QueueID, or Err carries the payload, matching Status.
type Outcome struct {
	Status  Status
	Result  *sheets.Result
	QueueID int64
	Err     error
}

// Executor performs a command against the remote store.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (*sheets.Result, error)
}

// Reporter receives delivery outcomes as connectivity signals.
type Reporter interface {
	ReportSuccess()
	ReportFailure()
}

// Dispatcher classifies and routes commands. Probe and Reporter are
// optional; without a probe every command is attempted immediately.
type Dispatcher struct {
	exec     Executor
	queue    queue.Store
	probe    connectivity.Probe
	reporter Reporter
}

// New returns a Dispatcher. exec and store are required.
func New(exec Executor, store queue.Store, probe connectivity.Probe, reporter Reporter) *Dispatcher {
	return &Dispatcher{exec: exec, queue: store, probe: probe, reporter: reporter}
}

// Dispatch validates cmd, then either delivers it, queues it, or rejects it.
//
// Validation failures and permanent remote refusals reject without queueing.
// Transient failures and a reported-offline probe queue write-class commands;
// read-class commands surface the failure instead, since a stale read
// delivered minutes later serves nobody.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("command.operation", string(cmd.Operation)),
			attribute.String("command.target", cmd.Target),
		))
	defer span.End()

	if err := cmd.Validate(); err != nil {
		span.SetAttributes(attribute.String("dispatch.status", string(StatusRejected)))
		return Outcome{Status: StatusRejected, Err: err}, err
	}

	isRead := cmd.Operation.Class() == command.ClassRead

	if d.probe != nil && !d.probe.Online() {
		if isRead {
			span.SetAttributes(attribute.String("dispatch.status", string(StatusRejected)))
			return Outcome{Status: StatusRejected, Err: ErrOffline}, ErrOffline
		}
		return d.enqueue(ctx, span, cmd)
	}

	result, err := d.exec.Execute(ctx, cmd)
	if err == nil {
		if d.reporter != nil {
			d.reporter.ReportSuccess()
		}
		span.SetAttributes(attribute.String("dispatch.status", string(StatusDelivered)))
		return Outcome{Status: StatusDelivered, Result: result}, nil
	}

	if sheets.IsTransient(err) {
		if d.reporter != nil {
			d.reporter.ReportFailure()
		}
		if isRead {
			span.SetAttributes(attribute.String("dispatch.status", string(StatusRejected)))
			return Outcome{Status: StatusRejected, Err: err}, err
		}
		return d.enqueue(ctx, span, cmd)
	}

	span.SetAttributes(attribute.String("dispatch.status", string(StatusRejected)))
	return Outcome{Status: StatusRejected, Err: err}, err
}

func (d *Dispatcher) enqueue(ctx context.Context, span trace.Span, cmd command.Command) (Outcome, error) {
	entry, err := d.queue.Insert(ctx, cmd)
	if err != nil {
		err = fmt.Errorf("queue command: %w", err)
		return Outcome{Status: StatusRejected, Err: err}, err
	}
	span.SetAttributes(
		attribute.String("dispatch.status", string(StatusQueued)),
		attribute.Int64("dispatch.queue_id", entry.ID),
	)
	return Outcome{Status: StatusQueued, QueueID: entry.ID}, nil
}
