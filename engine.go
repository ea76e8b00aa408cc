package taskwire

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Transport transmits a change batch to the server. Implementations
// classify request-level failures by returning *SyncError.
type Transport interface {
	PushChanges(ctx context.Context, batch []Change) (SyncStatus, error)
}

// Scheduler delivers EventTimer wakeups back to the engine after a delay.
// Tests substitute a manual implementation; production uses time.AfterFunc.
type Scheduler interface {
	Schedule(t Timer, after time.Duration)
}

// LogStore is the client-local persistence port for the changelog. The
// production implementation stores the serialized log under one fixed key;
// tests substitute an in-memory one.
type LogStore interface {
	Load() ([]Change, error)
	Save(changes []Change) error
}

// EngineConfig wires an Engine's collaborators.
type EngineConfig struct {
	// Baseline is the server-supplied task list the persisted changelog
	// is folded onto.
	Baseline []Task

	Logs      LogStore
	Transport Transport

	// Scheduler may be nil, in which case timers run on time.AfterFunc.
	Scheduler Scheduler

	// Upcoming and Completed configure the two pagination loaders.
	Upcoming  PaginatorConfig
	Completed PaginatorConfig

	// Online is the initial connectivity sample.
	Online bool

	// Async runs sync requests on their own goroutine. When false the
	// request runs on the calling goroutine, which suits one-shot CLI
	// invocations.
	Async bool

	// OnReload is invoked when the user discards failed changes; it must
	// rebuild the engine from a fresh server baseline.
	OnReload func()

	Debug *DebugLogger
}

// Engine drives the sync state machine. It owns the task projection
// exclusively: the projection is updated only by transition functions or
// by explicit tasks-loaded messages from a pagination loader. All inputs
// funnel through a single event queue, so re-entrant sends (an effect
// producing a new event) are processed in order without external locking.
type Engine struct {
	mu        sync.Mutex
	model     Model
	queue     []Event
	draining  bool
	logs      LogStore
	transport Transport
	scheduler Scheduler
	async     bool
	onReload  func()
	debug     *DebugLogger

	upcoming  *Paginator
	completed *Paginator
}

// NewEngine restores the persisted changelog, folds it onto the baseline
// and settles the machine into its first resting state. The log is
// restored before any other logic runs so a restart does not lose pending
// offline work.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	changelog, err := cfg.Logs.Load()
	if err != nil {
		return nil, fmt.Errorf("engine: restore changelog: %w", err)
	}

	e := &Engine{
		logs:      cfg.Logs,
		transport: cfg.Transport,
		scheduler: cfg.Scheduler,
		async:     cfg.Async,
		onReload:  cfg.OnReload,
		debug:     cfg.Debug,
		upcoming:  NewPaginator(PartitionUpcoming, cfg.Upcoming),
		completed: NewPaginator(PartitionCompleted, cfg.Completed),
	}
	if e.scheduler == nil {
		e.scheduler = &clockScheduler{engine: e}
	}

	model, effects := Init(cfg.Baseline, changelog, cfg.Online)
	e.mu.Lock()
	e.model = model
	e.debug.LogTransition("", model.Phase)
	e.runEffects(effects)
	e.drain()
	e.mu.Unlock()

	return e, nil
}

// Apply validates and dispatches a user mutation. The change is appended
// to the log and folded into the projection synchronously; transmission
// happens on the engine's own schedule.
func (e *Engine) Apply(change Change) error {
	if change.Type.RequiresName() {
		if change.TaskName == "" {
			return ErrEmptyName
		}
		if len(change.TaskName) > MaxTaskNameLength {
			return ErrNameTooLong
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model.Phase == PhaseSomeFailed {
		return ErrEngineHalted
	}
	e.send(EventChange{Change: change})
	return nil
}

// Send delivers an event to the machine.
func (e *Engine) Send(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.send(ev)
}

// SetOnline feeds a connectivity sample into the machine.
func (e *Engine) SetOnline(online bool) {
	if online {
		e.Send(EventOnline{})
	} else {
		e.Send(EventOffline{})
	}
}

// RetrySync is the explicit user retry affordance for passive errors.
func (e *Engine) RetrySync() { e.Send(EventRetrySync{}) }

// DiscardFailed purges failed changes and forces a full reload.
func (e *Engine) DiscardFailed() { e.Send(EventDiscardFailed{}) }

// Snapshot returns a copy of the current model for inspection. The slices
// are copied; mutating them does not affect the engine.
func (e *Engine) Snapshot() Model {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.model
	m.Tasks = append([]Task(nil), e.model.Tasks...)
	m.Changelog = append([]Change(nil), e.model.Changelog...)
	return m
}

// Tasks returns the current projection for one partition, in insertion
// order.
func (e *Engine) Tasks(p Partition) []Task {
	snap := e.Snapshot()
	out := make([]Task, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if (p == PartitionCompleted) == t.Completed() {
			out = append(out, t)
		}
	}
	return out
}

// Pending returns the changes still awaiting server confirmation.
func (e *Engine) Pending() []Change {
	return e.Snapshot().Changelog
}

// Phase returns the machine's current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Phase
}

// LoadMore fetches the next baseline page for a partition and merges it
// into the projection. At most one load per partition is in flight,
// enforced by the loader's own state.
func (e *Engine) LoadMore(ctx context.Context, p Partition) error {
	pg := e.paginator(p)
	tasks, err := pg.LoadMore(ctx)
	if err != nil {
		return err
	}
	e.Send(EventTasksLoaded{Tasks: tasks})
	return nil
}

// Loader exposes a partition's pagination state.
func (e *Engine) Loader(p Partition) PaginatorState {
	return e.paginator(p).State()
}

func (e *Engine) paginator(p Partition) *Paginator {
	if p == PartitionCompleted {
		return e.completed
	}
	return e.upcoming
}

// send enqueues and drains. Callers hold e.mu.
func (e *Engine) send(ev Event) {
	e.queue = append(e.queue, ev)
	if e.draining {
		return
	}
	e.drain()
}

func (e *Engine) drain() {
	e.draining = true
	defer func() { e.draining = false }()

	for len(e.queue) > 0 {
		ev := e.queue[0]
		e.queue = e.queue[1:]

		before := e.model.Phase
		model, effects := Transition(e.model, ev)
		e.model = model
		if model.Phase != before {
			e.debug.LogTransition(before, model.Phase)
		}
		e.runEffects(effects)
	}
}

// runEffects executes effects requested by a transition. Callers hold
// e.mu; anything that needs to re-enter does so through the queue.
func (e *Engine) runEffects(effects []Effect) {
	for _, fx := range effects {
		switch fx := fx.(type) {
		case EffectSaveLog:
			// Fire-and-forget: persistence is not held under any
			// transaction with the network call. Failures are logged
			// and the in-memory log stays authoritative.
			if err := e.logs.Save(e.model.Changelog); err != nil {
				e.debug.LogError("save changelog", err)
			}

		case EffectStartSync:
			if e.async {
				go e.runSync(fx.Batch)
			} else {
				e.runSyncLocked(fx.Batch)
			}

		case EffectSchedule:
			e.scheduler.Schedule(fx.Timer, fx.After)

		case EffectReload:
			if e.onReload != nil {
				e.onReload()
			}
		}
	}
}

// runSync transmits a batch and feeds the result back as an event. Used
// in async mode, off the engine's lock.
func (e *Engine) runSync(batch []Change) {
	ev := e.performSync(batch)
	e.Send(ev)
}

// runSyncLocked is the inline variant; the caller already holds e.mu and
// is inside drain, so the result event lands on the queue directly.
func (e *Engine) runSyncLocked(batch []Change) {
	ev := e.performSync(batch)
	e.queue = append(e.queue, ev)
}

func (e *Engine) performSync(batch []Change) Event {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e.debug.LogSync("push", fmt.Sprintf("%d change(s)", len(batch)))
	status, err := e.transport.PushChanges(ctx, batch)
	if err != nil {
		class := Classify(err)
		e.debug.LogError("push", err)
		return EventSyncFailed{Class: class, Err: err}
	}
	return EventSyncDone{Status: status}
}

// clockScheduler delivers timers via time.AfterFunc.
type clockScheduler struct {
	engine *Engine
}

func (s *clockScheduler) Schedule(t Timer, after time.Duration) {
	time.AfterFunc(after, func() {
		s.engine.Send(EventTimer{Timer: t})
	})
}
