package taskwire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
)

// fakeServer is a minimal in-memory Taskwire server for client tests.
type fakeServer struct {
	mu       sync.Mutex
	upcoming []Task
	batches  [][]Change
	outcome  func(Change) Outcome

	*httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		outcome: func(Change) Outcome { return Outcome{Type: OutcomeOK} },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Version: "test"})
	})
	mux.HandleFunc("GET /api/tasks/upcoming", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		json.NewEncoder(w).Encode(Page{Data: fs.upcoming})
	})
	mux.HandleFunc("GET /api/tasks/completed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Page{Data: nil})
	})
	mux.HandleFunc("POST /api/sync", func(w http.ResponseWriter, r *http.Request) {
		var batch []Change
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode sync batch: %v", err)
		}

		fs.mu.Lock()
		fs.batches = append(fs.batches, batch)
		status := SyncStatus{}
		for _, c := range batch {
			status[c.ID] = fs.outcome(c)
		}
		fs.mu.Unlock()

		json.NewEncoder(w).Encode(SyncResponse{SyncStatus: status})
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Server.Close)
	return fs
}

func (fs *fakeServer) pushedBatches() [][]Change {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([][]Change(nil), fs.batches...)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := Config{
		LocalPath: filepath.Join(t.TempDir(), "tasks.db"),
		ServerURL: serverURL,
	}
	if serverURL != "" {
		cfg.Token = "test-token"
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_OfflineLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	client, err := New(Config{LocalPath: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	task, err := client.Add("Buy milk")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := client.Complete(task.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if got := client.Tasks(PartitionCompleted); len(got) != 1 || got[0].ID != task.ID {
		t.Errorf("completed partition = %+v", got)
	}
	if got := client.Tasks(PartitionUpcoming); len(got) != 0 {
		t.Errorf("upcoming partition = %+v", got)
	}
	if pending := client.Pending(); len(pending) != 2 {
		t.Errorf("pending = %+v", pending)
	}
	if client.Phase() != PhaseBeforeSyncing {
		t.Errorf("phase = %s, want %s", client.Phase(), PhaseBeforeSyncing)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A new process over the same database sees the same state.
	client, err = New(Config{LocalPath: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer client.Close()

	if got := client.Tasks(PartitionCompleted); len(got) != 1 || got[0].Name != "Buy milk" {
		t.Errorf("restored projection = %+v", got)
	}
	if pending := client.Pending(); len(pending) != 2 {
		t.Errorf("restored pending = %+v", pending)
	}
}

func TestClient_OnlineMutationSyncsImmediately(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, server.URL)

	task, err := client.Add("Buy milk")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if pending := client.Pending(); len(pending) != 0 {
		t.Errorf("pending after online add = %+v", pending)
	}
	if client.Phase() != PhaseAllSynced {
		t.Errorf("phase = %s, want %s", client.Phase(), PhaseAllSynced)
	}

	batches := server.pushedBatches()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches = %+v", batches)
	}
	if got := batches[0][0]; got.Type != ChangeCreate || got.TaskID != task.ID || got.TaskName != "Buy milk" {
		t.Errorf("pushed change = %+v", got)
	}
}

func TestClient_BaselineFetchedFromServer(t *testing.T) {
	server := newFakeServer(t)
	server.upcoming = []Task{mkTask("srv-1", "From the server")}

	client := newTestClient(t, server.URL)

	got := client.Tasks(PartitionUpcoming)
	if len(got) != 1 || got[0].ID != "srv-1" {
		t.Fatalf("baseline = %+v", got)
	}

	// A mutation against a server-supplied task flows through normally.
	if err := client.Complete("srv-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got := client.Tasks(PartitionCompleted); len(got) != 1 {
		t.Errorf("completed = %+v", got)
	}
}

func TestClient_UnreachableServerDegradesToOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(t, server.URL)

	if _, err := client.Add("Queued while down"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if pending := client.Pending(); len(pending) != 1 {
		t.Errorf("pending = %+v", pending)
	}
	if client.Phase() != PhaseBeforeSyncing {
		t.Errorf("phase = %s, want %s", client.Phase(), PhaseBeforeSyncing)
	}
}

func TestClient_MutationOfUnknownTask(t *testing.T) {
	client := newTestClient(t, "")

	for _, op := range []func() error{
		func() error { return client.Complete("no-such-task") },
		func() error { return client.Uncomplete("no-such-task") },
		func() error { return client.Edit("no-such-task", "x") },
		func() error { return client.Delete("no-such-task") },
	} {
		if err := op(); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("err = %v, want ErrTaskNotFound", err)
		}
	}

	if pending := client.Pending(); len(pending) != 0 {
		t.Errorf("rejected mutations queued changes: %+v", pending)
	}
}

func TestClient_DiscardFailedReloadsBaseline(t *testing.T) {
	server := newFakeServer(t)
	server.upcoming = []Task{mkTask("srv-1", "Server truth")}
	server.outcome = func(c Change) Outcome {
		if c.Type == ChangeDelete {
			return Outcome{Type: OutcomeError, Error: "No task exists with the given task id"}
		}
		return Outcome{Type: OutcomeOK}
	}

	client := newTestClient(t, server.URL)

	// The optimistic delete vanishes locally, then the server rejects it.
	if err := client.Delete("srv-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if client.Phase() != PhaseSomeFailed {
		t.Fatalf("phase = %s, want %s", client.Phase(), PhaseSomeFailed)
	}
	if got := client.Tasks(PartitionUpcoming); len(got) != 0 {
		t.Errorf("optimistic delete not applied: %+v", got)
	}
	if _, err := client.Add("blocked"); !errors.Is(err, ErrEngineHalted) {
		t.Errorf("Add during halt = %v, want ErrEngineHalted", err)
	}

	// Discarding abandons the optimistic state and restores server truth.
	client.DiscardFailed()
	if got := client.Tasks(PartitionUpcoming); len(got) != 1 || got[0].ID != "srv-1" {
		t.Errorf("reloaded projection = %+v", got)
	}
	if pending := client.Pending(); len(pending) != 0 {
		t.Errorf("pending after discard = %+v", pending)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, server.URL)

	if !client.HealthCheck(context.Background()) {
		t.Error("HealthCheck = false against a live server")
	}

	offline := newTestClient(t, "")
	if offline.HealthCheck(context.Background()) {
		t.Error("HealthCheck = true without a server")
	}
}
