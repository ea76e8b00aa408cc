package taskwire

import "time"

// Phase identifies one state of the sync engine.
type Phase string

const (
	PhaseInitializing  Phase = "initializing"
	PhaseIdle          Phase = "normal.idle"
	PhaseBeforeSyncing Phase = "normal.beforeSyncing"
	PhaseSyncing       Phase = "normal.syncing"
	PhaseAfterSyncing  Phase = "normal.afterSyncing"
	PhaseAllSynced     Phase = "normal.allSynced"
	PhasePassiveError  Phase = "normal.passiveError"
	PhaseSomeFailed    Phase = "someFailedToSync"
	PhaseReloading     Phase = "reloading"
)

// Timing and retry policy constants.
const (
	// AllSyncedDisplay is how long the success state is shown before the
	// engine returns to idle.
	AllSyncedDisplay = 3 * time.Second

	// AutoRetryDelay is the pause before an automatic retry of a
	// transient-looking sync failure.
	AutoRetryDelay = 10 * time.Second

	// MaxAutoRetries bounds automatic retries. Once exhausted the engine
	// parks in the passive error state until the user or a connectivity
	// transition triggers another attempt.
	MaxAutoRetries = 2
)

// Timer names a scheduled wakeup owned by the engine.
type Timer string

const (
	TimerAllSynced Timer = "allSynced"
	TimerRetry     Timer = "retry"
)

// Model is the complete, serializable state of the sync engine: the phase
// tag plus everything the transition function needs to decide the next
// step. The projection invariant holds at every point:
// Tasks == Fold(baseline, Changelog).
type Model struct {
	Phase      Phase
	ErrorClass ErrorClass // set while Phase == PhasePassiveError
	RetryCount int
	LastErr    error // retained payload for unknown-class failures
	Online     bool

	Tasks     []Task
	Changelog []Change
}

// Event is an input to the transition function.
type Event interface{ event() }

// EventChange delivers a fresh user mutation.
type EventChange struct{ Change Change }

// EventOnline and EventOffline are connectivity transitions sampled from
// the host signal. They never preempt an in-flight request.
type (
	EventOnline  struct{}
	EventOffline struct{}
)

// EventRetrySync is the explicit user retry affordance.
type EventRetrySync struct{}

// EventSyncDone delivers the per-record outcomes of a finished sync
// request.
type EventSyncDone struct{ Status SyncStatus }

// EventSyncFailed reports a request-level sync failure.
type EventSyncFailed struct {
	Class ErrorClass
	Err   error
}

// EventTimer delivers a previously scheduled wakeup.
type EventTimer struct{ Timer Timer }

// EventDiscardFailed is the explicit user action that purges failed
// changes and forces a full reload.
type EventDiscardFailed struct{}

// EventTasksLoaded merges a freshly fetched baseline page into the
// projection. Sent by a pagination loader.
type EventTasksLoaded struct{ Tasks []Task }

func (EventChange) event()        {}
func (EventOnline) event()        {}
func (EventOffline) event()       {}
func (EventRetrySync) event()     {}
func (EventSyncDone) event()      {}
func (EventSyncFailed) event()    {}
func (EventTimer) event()         {}
func (EventDiscardFailed) event() {}
func (EventTasksLoaded) event()   {}

// Effect is a side effect requested by a transition. The driver executes
// effects after the state update; the transition function itself never
// touches the network, storage, or clocks.
type Effect interface{ effect() }

// EffectStartSync asks the driver to transmit the batch. Exactly one sync
// may be in flight; the machine only emits this on entry to the syncing
// phase.
type EffectStartSync struct{ Batch []Change }

// EffectSaveLog asks the driver to persist the changelog.
type EffectSaveLog struct{}

// EffectSchedule asks the driver to deliver EventTimer{Timer} after the
// given duration.
type EffectSchedule struct {
	Timer Timer
	After time.Duration
}

// EffectReload asks the driver to rebuild the engine from a fresh server
// baseline.
type EffectReload struct{}

func (EffectStartSync) effect() {}
func (EffectSaveLog) effect()   {}
func (EffectSchedule) effect()  {}
func (EffectReload) effect()    {}

// Init builds the starting model: persisted offline changes are folded
// onto the freshly loaded baseline before anything else runs, then the
// machine settles into its first resting state.
func Init(baseline []Task, changelog []Change, online bool) (Model, []Effect) {
	m := Model{
		Phase:     PhaseInitializing,
		Online:    online,
		Tasks:     Fold(baseline, changelog),
		Changelog: changelog,
	}
	return resolveAlways(m, nil)
}

// Transition is the pure state machine step: (model, event) -> (model,
// effects). Unhandled events in a given phase are ignored, matching the
// machine's structure rather than erroring.
func Transition(m Model, ev Event) (Model, []Effect) {
	var effects []Effect

	switch ev := ev.(type) {
	case EventChange:
		// Appended to the log and folded into the projection
		// immediately; the UI never waits on the network for local
		// feedback. A cycle already in flight picks the new change up
		// once it resolves.
		m.Changelog = append(m.Changelog, ev.Change)
		m.Tasks = Apply(m.Tasks, ev.Change)
		effects = append(effects, EffectSaveLog{})

	case EventOnline:
		m.Online = true
		switch m.Phase {
		case PhaseBeforeSyncing, PhasePassiveError:
			return enterSyncing(m, effects)
		}

	case EventOffline:
		// A request already sent is allowed to complete or fail on its
		// own schedule; only the guard for future attempts changes.
		m.Online = false

	case EventRetrySync:
		if m.Phase == PhasePassiveError {
			return enterSyncing(m, effects)
		}

	case EventSyncDone:
		if m.Phase != PhaseSyncing {
			break
		}
		m.Phase = PhaseAfterSyncing
		m.Changelog = Reconcile(m.Changelog, ev.Status)
		m.RetryCount = 0
		effects = append(effects, EffectSaveLog{})

	case EventSyncFailed:
		if m.Phase != PhaseSyncing {
			break
		}
		m.Phase = PhasePassiveError
		m.ErrorClass = ev.Class
		switch ev.Class {
		case ErrorClassNetwork, ErrorClassServer:
			effects = append(effects, EffectSchedule{Timer: TimerRetry, After: AutoRetryDelay})
		default:
			// Unknown failures are not assumed transient: keep the raw
			// payload for display and wait for an explicit retry.
			m.LastErr = ev.Err
		}

	case EventTimer:
		switch {
		case ev.Timer == TimerAllSynced && m.Phase == PhaseAllSynced:
			m.Phase = PhaseIdle
		case ev.Timer == TimerRetry && m.Phase == PhasePassiveError:
			if m.RetryCount < MaxAutoRetries {
				m.RetryCount++
				return enterSyncing(m, effects)
			}
		}

	case EventDiscardFailed:
		if m.Phase != PhaseSomeFailed {
			break
		}
		m.Phase = PhaseReloading
		m.Changelog = DiscardFailed(m.Changelog)
		effects = append(effects, EffectSaveLog{}, EffectReload{})
		return m, effects

	case EventTasksLoaded:
		// Never duplicate IDs already present, then re-fold the pending
		// changelog so the projection invariant keeps holding for the
		// newly visible rows. Fold is idempotent, so rows already
		// covered by earlier folds are unaffected.
		m.Tasks = Fold(mergeBaseline(m.Tasks, ev.Tasks), m.Changelog)
	}

	return resolveAlways(m, effects)
}

// enterSyncing moves to the syncing phase and emits the transmission
// effect with everything currently pending.
func enterSyncing(m Model, effects []Effect) (Model, []Effect) {
	m.Phase = PhaseSyncing
	m.ErrorClass = ""
	m.LastErr = nil
	batch := make([]Change, len(m.Changelog))
	copy(batch, m.Changelog)
	return m, append(effects, EffectStartSync{Batch: batch})
}

// resolveAlways settles transient phases, the equivalent of eventless
// ("always") transitions: initializing falls through to normal operation,
// idle fires a sync when there is work, the guard phase waits for
// connectivity, and afterSyncing picks its exit by inspecting the log.
func resolveAlways(m Model, effects []Effect) (Model, []Effect) {
	for {
		switch m.Phase {
		case PhaseInitializing:
			m.Phase = PhaseIdle

		case PhaseIdle:
			if len(m.Changelog) == 0 {
				return m, effects
			}
			m.Phase = PhaseBeforeSyncing

		case PhaseBeforeSyncing:
			// A sync attempt while offline is never issued.
			if !m.Online {
				return m, effects
			}
			return enterSyncing(m, effects)

		case PhaseAfterSyncing:
			if AnyFailed(m.Changelog) {
				m.Phase = PhaseSomeFailed
				return m, effects
			}
			m.Phase = PhaseAllSynced
			return m, append(effects, EffectSchedule{Timer: TimerAllSynced, After: AllSyncedDisplay})

		default:
			return m, effects
		}
	}
}

// mergeBaseline appends loaded tasks whose IDs are not already present.
func mergeBaseline(existing, loaded []Task) []Task {
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[t.ID] = struct{}{}
	}
	out := existing
	for _, t := range loaded {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		out = append(out, t)
	}
	return out
}
