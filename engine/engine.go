// Package engine is the composition root of the sync pipeline: it encodes
// domain mutations into commands, authorizes them against scope membership,
// dispatches them to the remote store, and exposes the durable queue and
// audit surfaces the dashboard reads.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dealerops/sheetbridge/access"
	"github.com/dealerops/sheetbridge/audit"
	"github.com/dealerops/sheetbridge/command"
	"github.com/dealerops/sheetbridge/connectivity"
	"github.com/dealerops/sheetbridge/dispatch"
	"github.com/dealerops/sheetbridge/queue"
	"github.com/dealerops/sheetbridge/scheduler"
)

// Config assembles an Engine. Executor and Queue are required; everything
// else degrades gracefully when absent.
type Config struct {
	// Executor delivers commands to the remote store.
	Executor dispatch.Executor

	// Queue is the durable store of undelivered commands.
	Queue queue.Store

	// Probe reports connectivity; nil means always-online.
	Probe connectivity.Probe

	// Reporter receives delivery outcomes as connectivity signals,
	// typically the same *connectivity.Monitor passed as Probe.
	Reporter dispatch.Reporter

	// Encoder resolves mutations into commands. A zero-value Encoder with
	// stock targets is used when nil.
	Encoder *command.Encoder

	// Configs resolves per-scope overrides; nil means defaults only.
	Configs command.ConfigStore

	// Members backs the access gate; nil fails every write closed.
	Members access.MembershipStore

	// Audit receives the change log; nil disables auditing.
	Audit audit.Reader

	// Retry governs queue replay backoff.
	Retry scheduler.RetryPolicy
}

// Engine is the synchronization pipeline.
type Engine struct {
	encoder    *command.Encoder
	configs    command.ConfigStore
	gate       *access.Gate
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	store      queue.Store
	auditLog   audit.Reader
	recorder   *audit.Recorder
	probe      connectivity.Probe
}

// New wires an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("engine requires an executor")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("engine requires a queue store")
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = &command.Encoder{DefaultTargets: command.DefaultTargets()}
	}

	e := &Engine{
		encoder:  enc,
		configs:  cfg.Configs,
		gate:     access.NewGate(cfg.Members),
		store:    cfg.Queue,
		auditLog: cfg.Audit,
		recorder: audit.NewRecorder(cfg.Audit),
		probe:    cfg.Probe,
	}
	e.dispatcher = dispatch.New(cfg.Executor, cfg.Queue, cfg.Probe, cfg.Reporter)
	e.scheduler = scheduler.New(cfg.Queue, cfg.Executor,
		scheduler.WithRetryPolicy(cfg.Retry),
		scheduler.WithDeadLetterHandler(e.handleDeadLetter),
		scheduler.WithDeliveredHandler(e.handleReplayed),
	)
	return e, nil
}

// Apply runs one mutation through the full pipeline on behalf of
// principalID. The returned outcome says whether it was delivered, queued,
// or rejected; access failures surface as error before any delivery attempt.
func (e *Engine) Apply(ctx context.Context, principalID, scopeID string, m command.Mutation) (dispatch.Outcome, error) {
	cfg := e.scopeConfig(ctx, scopeID)

	cmd, err := e.encoder.Encode(m, cfg)
	if err != nil {
		return dispatch.Outcome{Status: dispatch.StatusRejected, Err: err}, err
	}
	cmd.ActorID = principalID

	role, err := e.gate.Authorize(ctx, principalID, scopeID, cmd.Operation)
	if err != nil {
		return dispatch.Outcome{Status: dispatch.StatusRejected, Err: err}, err
	}

	out, err := e.dispatcher.Dispatch(ctx, cmd)
	if out.Status == dispatch.StatusDelivered {
		e.recorder.Delivered(ctx, principalID, string(role), cmd)
	}
	return out, err
}

func (e *Engine) scopeConfig(ctx context.Context, scopeID string) command.ScopeConfig {
	if e.configs != nil && scopeID != "" {
		if cfg, ok, err := e.configs.Get(ctx, scopeID); err == nil && ok {
			return cfg
		}
	}
	return command.ScopeConfig{ScopeID: scopeID}
}

func (e *Engine) handleDeadLetter(ctx context.Context, entry queue.QueuedCommand, cause error) {
	e.recorder.DeadLettered(ctx, entry.Payload.ActorID, "", entry.Payload, cause)
}

func (e *Engine) handleReplayed(ctx context.Context, entry queue.QueuedCommand) {
	e.recorder.Delivered(ctx, entry.Payload.ActorID, "", entry.Payload)
}

// QueueCount returns the number of undelivered commands.
func (e *Engine) QueueCount(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// QueuedCommands lists the undelivered commands in replay order.
func (e *Engine) QueuedCommands(ctx context.Context) ([]queue.QueuedCommand, error) {
	return e.store.List(ctx)
}

// ProcessQueue makes one replay pass over the queue.
func (e *Engine) ProcessQueue(ctx context.Context) (scheduler.Summary, error) {
	return e.scheduler.ProcessQueue(ctx)
}

// RemoveQueued discards one queued command. Removing an absent id is a no-op.
func (e *Engine) RemoveQueued(ctx context.Context, id int64) error {
	return e.store.RemoveByID(ctx, id)
}

// ClearQueue discards every queued command.
func (e *Engine) ClearQueue(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// AuditLog pages through recorded changes, newest first. Returns empty when
// auditing is disabled.
func (e *Engine) AuditLog(ctx context.Context, limit, offset int) ([]audit.Entry, error) {
	if e.auditLog == nil {
		return []audit.Entry{}, nil
	}
	return e.auditLog.List(ctx, limit, offset)
}

// Online reports the probe's current view; true when no probe is wired.
func (e *Engine) Online() bool {
	if e.probe == nil {
		return true
	}
	return e.probe.Online()
}

// Start begins background queue replay every interval, plus an immediate
// drain whenever connectivity returns.
func (e *Engine) Start(ctx context.Context, interval time.Duration) error {
	return e.scheduler.Start(ctx, interval, e.probe)
}

// Stop halts background replay.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}
