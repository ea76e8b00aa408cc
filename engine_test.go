package taskwire

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memLogStore is the in-memory LogStore used by engine tests.
type memLogStore struct {
	changes []Change
	saves   int
	loadErr error
	saveErr error
}

func (m *memLogStore) Load() ([]Change, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]Change(nil), m.changes...), nil
}

func (m *memLogStore) Save(changes []Change) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.changes = append([]Change(nil), changes...)
	m.saves++
	return nil
}

// scriptTransport replies to successive pushes with scripted results.
type scriptTransport struct {
	batches [][]Change
	script  []func(batch []Change) (SyncStatus, error)
}

func (s *scriptTransport) PushChanges(_ context.Context, batch []Change) (SyncStatus, error) {
	s.batches = append(s.batches, append([]Change(nil), batch...))
	if len(s.script) == 0 {
		return nil, errors.New("unscripted push")
	}
	step := s.script[0]
	s.script = s.script[1:]
	return step(batch)
}

func allOK(batch []Change) (SyncStatus, error) {
	status := SyncStatus{}
	for _, c := range batch {
		status[c.ID] = Outcome{Type: OutcomeOK}
	}
	return status, nil
}

// manualScheduler records scheduled timers without running any clock.
type manualScheduler struct {
	scheduled []Timer
}

func (m *manualScheduler) Schedule(t Timer, _ time.Duration) {
	m.scheduled = append(m.scheduled, t)
}

func (m *manualScheduler) pop() (Timer, bool) {
	if len(m.scheduled) == 0 {
		return "", false
	}
	t := m.scheduled[0]
	m.scheduled = m.scheduled[1:]
	return t, true
}

func newTestEngine(t *testing.T, logs *memLogStore, transport Transport, sched Scheduler, online bool) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Logs:      logs,
		Transport: transport,
		Scheduler: sched,
		Online:    online,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestEngine_OfflineMutationQueues(t *testing.T) {
	logs := &memLogStore{}
	transport := &scriptTransport{}
	engine := newTestEngine(t, logs, transport, &manualScheduler{}, false)

	change := NewChange(ChangeCreate, NewTaskID(), "Buy milk")
	if err := engine.Apply(change); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got := engine.Tasks(PartitionUpcoming); len(got) != 1 || got[0].Name != "Buy milk" {
		t.Errorf("projection = %+v", got)
	}
	if pending := engine.Pending(); len(pending) != 1 {
		t.Errorf("pending = %+v", pending)
	}
	if engine.Phase() != PhaseBeforeSyncing {
		t.Errorf("phase = %s, want %s", engine.Phase(), PhaseBeforeSyncing)
	}
	if len(transport.batches) != 0 {
		t.Error("push attempted while offline")
	}
	if logs.saves == 0 {
		t.Error("changelog never persisted")
	}
}

func TestEngine_ReconnectDrainsQueue(t *testing.T) {
	logs := &memLogStore{}
	transport := &scriptTransport{script: []func([]Change) (SyncStatus, error){allOK}}
	sched := &manualScheduler{}
	engine := newTestEngine(t, logs, transport, sched, false)

	if err := engine.Apply(NewChange(ChangeCreate, NewTaskID(), "Buy milk")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	engine.SetOnline(true)

	if len(transport.batches) != 1 || len(transport.batches[0]) != 1 {
		t.Fatalf("batches = %+v", transport.batches)
	}
	if engine.Phase() != PhaseAllSynced {
		t.Fatalf("phase = %s, want %s", engine.Phase(), PhaseAllSynced)
	}
	if pending := engine.Pending(); len(pending) != 0 {
		t.Errorf("pending after sync = %+v", pending)
	}
	if len(logs.changes) != 0 {
		t.Errorf("persisted log not cleared: %+v", logs.changes)
	}

	// The success display is bounded by a timer, then back to rest.
	timer, ok := sched.pop()
	if !ok || timer != TimerAllSynced {
		t.Fatalf("scheduled = %v, ok = %v", timer, ok)
	}
	engine.Send(EventTimer{Timer: timer})
	if engine.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want %s", engine.Phase(), PhaseIdle)
	}
}

func TestEngine_RestartRestoresPendingWork(t *testing.T) {
	logs := &memLogStore{}
	transport := &scriptTransport{}
	first := newTestEngine(t, logs, transport, &manualScheduler{}, false)
	if err := first.Apply(NewChange(ChangeCreate, NewTaskID(), "Survives restart")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// A second engine over the same store stands in for a process restart.
	transport2 := &scriptTransport{script: []func([]Change) (SyncStatus, error){allOK}}
	second := newTestEngine(t, logs, transport2, &manualScheduler{}, true)

	if len(transport2.batches) != 1 {
		t.Fatalf("restored engine did not push the pending change: %+v", transport2.batches)
	}
	if second.Phase() != PhaseAllSynced {
		t.Errorf("phase = %s, want %s", second.Phase(), PhaseAllSynced)
	}
}

func TestEngine_FailureHaltsUntilDiscard(t *testing.T) {
	logs := &memLogStore{}
	goodID := NewTaskID()
	transport := &scriptTransport{script: []func([]Change) (SyncStatus, error){
		func(batch []Change) (SyncStatus, error) {
			status := SyncStatus{}
			for i, c := range batch {
				if i == 0 {
					status[c.ID] = Outcome{Type: OutcomeOK}
				} else {
					status[c.ID] = Outcome{Type: OutcomeError, Error: "No task exists with the given task id"}
				}
			}
			return status, nil
		},
	}}

	reloaded := false
	engine, err := NewEngine(EngineConfig{
		Logs:      logs,
		Transport: transport,
		Scheduler: &manualScheduler{},
		Online:    false,
		OnReload:  func() { reloaded = true },
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Apply(NewChange(ChangeCreate, goodID, "Fine")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := engine.Apply(NewChange(ChangeDelete, NewTaskID(), "")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	engine.SetOnline(true)

	if engine.Phase() != PhaseSomeFailed {
		t.Fatalf("phase = %s, want %s", engine.Phase(), PhaseSomeFailed)
	}

	// Mutations are refused while the user decides.
	err = engine.Apply(NewChange(ChangeComplete, goodID, ""))
	if !errors.Is(err, ErrEngineHalted) {
		t.Errorf("Apply during halt = %v, want ErrEngineHalted", err)
	}

	engine.DiscardFailed()
	if !reloaded {
		t.Error("discard did not trigger a reload")
	}
	if len(logs.changes) != 0 {
		t.Errorf("discarded log persisted non-empty: %+v", logs.changes)
	}
}

func TestEngine_NetworkFailureAutoRetries(t *testing.T) {
	logs := &memLogStore{}
	transport := &scriptTransport{script: []func([]Change) (SyncStatus, error){
		func([]Change) (SyncStatus, error) {
			return nil, &SyncError{Class: ErrorClassNetwork, Err: errors.New("connection refused")}
		},
		allOK,
	}}
	sched := &manualScheduler{}
	engine := newTestEngine(t, logs, transport, sched, false)

	if err := engine.Apply(NewChange(ChangeCreate, NewTaskID(), "Retry me")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	engine.SetOnline(true)

	if engine.Phase() != PhasePassiveError {
		t.Fatalf("phase = %s, want %s", engine.Phase(), PhasePassiveError)
	}
	snap := engine.Snapshot()
	if snap.ErrorClass != ErrorClassNetwork {
		t.Errorf("class = %s, want %s", snap.ErrorClass, ErrorClassNetwork)
	}

	timer, ok := sched.pop()
	if !ok || timer != TimerRetry {
		t.Fatalf("scheduled = %v, ok = %v", timer, ok)
	}
	engine.Send(EventTimer{Timer: timer})

	if len(transport.batches) != 2 {
		t.Fatalf("pushes = %d, want 2", len(transport.batches))
	}
	if engine.Phase() != PhaseAllSynced {
		t.Errorf("phase = %s, want %s", engine.Phase(), PhaseAllSynced)
	}
}

func TestEngine_ApplyValidatesName(t *testing.T) {
	engine := newTestEngine(t, &memLogStore{}, &scriptTransport{}, &manualScheduler{}, false)

	err := engine.Apply(NewChange(ChangeCreate, NewTaskID(), ""))
	if !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name: err = %v, want ErrEmptyName", err)
	}

	long := make([]byte, MaxTaskNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	err = engine.Apply(NewChange(ChangeEdit, NewTaskID(), string(long)))
	if !errors.Is(err, ErrNameTooLong) {
		t.Errorf("long name: err = %v, want ErrNameTooLong", err)
	}

	// Name rules only bind create and edit.
	if err := engine.Apply(NewChange(ChangeComplete, NewTaskID(), "")); err != nil {
		t.Errorf("complete with empty name rejected: %v", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngine_ChangeDuringSyncStaysPending(t *testing.T) {
	logs := &memLogStore{}
	var engine *Engine
	lateID := NewTaskID()
	firstPush := make(chan struct{})

	// The transport injects a second mutation while the first batch is in
	// flight, as a user typing during a slow request would. Needs async
	// mode so the request runs off the engine's lock.
	transport := &scriptTransport{}
	transport.script = []func([]Change) (SyncStatus, error){
		func(batch []Change) (SyncStatus, error) {
			defer close(firstPush)
			if err := engine.Apply(NewChange(ChangeCreate, lateID, "Typed mid-flight")); err != nil {
				t.Errorf("Apply during sync failed: %v", err)
			}
			return allOK(batch)
		},
		allOK,
	}

	sched := &manualScheduler{}
	var err error
	engine, err = NewEngine(EngineConfig{
		Logs:      logs,
		Transport: transport,
		Scheduler: sched,
		Online:    false,
		Async:     true,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Apply(NewChange(ChangeCreate, NewTaskID(), "First")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	engine.SetOnline(true)

	<-firstPush
	waitFor(t, "first cycle to settle", func() bool { return engine.Phase() == PhaseAllSynced })

	// The mid-flight change was not in batch one; ending the success
	// display finds it pending and fires a follow-up cycle.
	engine.Send(EventTimer{Timer: TimerAllSynced})
	waitFor(t, "follow-up push", func() bool { return len(engine.Pending()) == 0 })

	if len(transport.batches) != 2 {
		t.Fatalf("pushes = %d, want 2", len(transport.batches))
	}
	if len(transport.batches[0]) != 1 {
		t.Errorf("first batch = %+v", transport.batches[0])
	}
	if len(transport.batches[1]) != 1 || transport.batches[1][0].TaskID != lateID {
		t.Errorf("second batch = %+v", transport.batches[1])
	}
}

func TestEngine_LoadMoreMergesPage(t *testing.T) {
	next := "/api/tasks/upcoming?cursor=abc"
	pages := &scriptPageClient{pages: []Page{
		{Data: []Task{mkTask("b", "second page")}, NextPageURL: nil},
	}}

	engine, err := NewEngine(EngineConfig{
		Baseline:  []Task{mkTask("a", "first page")},
		Logs:      &memLogStore{},
		Transport: &scriptTransport{},
		Scheduler: &manualScheduler{},
		Upcoming:  PaginatorConfig{Client: pages, NextPageURL: &next},
		Online:    false,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if state := engine.Loader(PartitionUpcoming); state != PaginatorNotAllLoaded {
		t.Fatalf("loader = %s, want %s", state, PaginatorNotAllLoaded)
	}

	if err := engine.LoadMore(context.Background(), PartitionUpcoming); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	if got := engine.Tasks(PartitionUpcoming); len(got) != 2 {
		t.Errorf("projection = %+v", got)
	}
	if state := engine.Loader(PartitionUpcoming); state != PaginatorAllLoaded {
		t.Errorf("loader = %s, want %s", state, PaginatorAllLoaded)
	}
	if err := engine.LoadMore(context.Background(), PartitionUpcoming); !errors.Is(err, ErrAllLoaded) {
		t.Errorf("LoadMore past the end = %v, want ErrAllLoaded", err)
	}
}
