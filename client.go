package taskwire

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Client is the main entry point: it owns the local changelog store, the
// sync engine and the transport, and exposes task operations that flow
// through the offline-first protocol. Direct online mutation is just the
// degenerate case of a one-change log.
type Client struct {
	config Config
	logs   *SQLiteLogStore
	syncer *Syncer
	debug  *DebugLogger

	mu     sync.Mutex
	engine *Engine

	stopWatch chan struct{}
	watchDone chan struct{}
}

// New creates a new Taskwire client. The persisted changelog is restored
// before anything else; the server baseline is fetched when reachable, and
// an unreachable server degrades to an offline start with an empty
// baseline rather than an error.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	logs, err := OpenLogStore(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		config:    cfg,
		logs:      logs,
		debug:     debug,
		stopWatch: make(chan struct{}),
		watchDone: make(chan struct{}),
	}

	if !cfg.IsOffline() {
		c.syncer = NewSyncer(cfg.ServerURL, cfg.Token, debug)
	}

	if err := c.initEngine(); err != nil {
		logs.Close()
		return nil, err
	}

	if c.syncer != nil && cfg.WatchConnectivity {
		go c.watchConnectivity()
	} else {
		close(c.watchDone)
	}

	return c, nil
}

// initEngine fetches the baseline, restores the changelog and builds the
// engine. Also used to rebuild after the user discards failed changes.
func (c *Client) initEngine() error {
	var (
		baseline  []Task
		upcoming  PaginatorConfig
		completed PaginatorConfig
		online    bool
	)

	if c.syncer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		up, errUp := c.syncer.FetchPage(ctx, FirstPageURL(PartitionUpcoming))
		done, errDone := c.syncer.FetchPage(ctx, FirstPageURL(PartitionCompleted))
		if errUp == nil && errDone == nil {
			online = true
			baseline = append(baseline, up.Data...)
			baseline = append(baseline, done.Data...)
			upcoming.NextPageURL = up.NextPageURL
			completed.NextPageURL = done.NextPageURL
		} else {
			c.debug.LogError("fetch baseline", firstErr(errUp, errDone))
		}
		upcoming.Client = c.syncer
		completed.Client = c.syncer
	}

	engine, err := NewEngine(EngineConfig{
		Baseline:  baseline,
		Logs:      c.logs,
		Transport: c.syncer,
		Upcoming:  upcoming,
		Completed: completed,
		Online:    online,
		OnReload:  c.reload,
		Debug:     c.debug,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()
	return nil
}

// Engine returns the sync engine for direct event access.
func (c *Client) Engine() *Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Add creates a task optimistically and returns it. The task ID is a
// client-generated UUID so two offline clients never collide.
func (c *Client) Add(name string) (Task, error) {
	change := NewChange(ChangeCreate, NewTaskID(), name)
	if err := c.Engine().Apply(change); err != nil {
		return Task{}, err
	}
	return Task{ID: change.TaskID, Name: change.TaskName, CreatedAt: change.CreatedAt}, nil
}

// Complete marks a task done.
func (c *Client) Complete(taskID string) error {
	return c.applyToExisting(ChangeComplete, taskID, "")
}

// Uncomplete clears a task's completion.
func (c *Client) Uncomplete(taskID string) error {
	return c.applyToExisting(ChangeUncomplete, taskID, "")
}

// Edit renames a task.
func (c *Client) Edit(taskID, name string) error {
	return c.applyToExisting(ChangeEdit, taskID, name)
}

// Delete removes a task.
func (c *Client) Delete(taskID string) error {
	return c.applyToExisting(ChangeDelete, taskID, "")
}

func (c *Client) applyToExisting(typ ChangeType, taskID, name string) error {
	engine := c.Engine()
	if !c.inProjection(engine, taskID) {
		return ErrTaskNotFound
	}
	return engine.Apply(NewChange(typ, taskID, name))
}

func (c *Client) inProjection(engine *Engine, taskID string) bool {
	for _, t := range engine.Snapshot().Tasks {
		if t.ID == taskID {
			return true
		}
	}
	return false
}

// Tasks returns the projection for one partition.
func (c *Client) Tasks(p Partition) []Task {
	return c.Engine().Tasks(p)
}

// Pending returns the changes still awaiting server confirmation.
func (c *Client) Pending() []Change {
	return c.Engine().Pending()
}

// Phase returns the engine's current phase.
func (c *Client) Phase() Phase {
	return c.Engine().Phase()
}

// LoadMore fetches and merges the next baseline page for a partition.
func (c *Client) LoadMore(ctx context.Context, p Partition) error {
	return c.Engine().LoadMore(ctx, p)
}

// RetrySync retries after a passive sync error.
func (c *Client) RetrySync() { c.Engine().RetrySync() }

// DiscardFailed drops failed changes and reloads from the server
// baseline, abandoning the optimistic state tied to the discarded
// changes.
func (c *Client) DiscardFailed() { c.Engine().DiscardFailed() }

// HealthCheck probes the server once and reports whether it is reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if c.syncer == nil {
		return false
	}
	_, err := c.syncer.Health(ctx)
	return err == nil
}

// Close stops the connectivity watcher and closes the local store.
func (c *Client) Close() error {
	close(c.stopWatch)
	select {
	case <-c.watchDone:
	case <-time.After(5 * time.Second):
	}

	if err := c.logs.Close(); err != nil {
		return err
	}
	return c.debug.Close()
}

// reload rebuilds the engine from a fresh server baseline. Invoked by the
// EffectReload after failed changes were discarded and persisted.
func (c *Client) reload() {
	if err := c.initEngine(); err != nil {
		c.debug.LogError("reload", err)
	}
}

// watchConnectivity samples the server's health endpoint and feeds
// online/offline transitions to the engine as events. A request already in
// flight is never preempted by a transition.
func (c *Client) watchConnectivity() {
	defer close(c.watchDone)

	ticker := time.NewTicker(c.config.ProbeInterval)
	defer ticker.Stop()

	online := c.Engine().Snapshot().Online
	for {
		select {
		case <-c.stopWatch:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := c.syncer.Health(ctx)
			cancel()

			now := err == nil
			if now != online {
				online = now
				c.debug.Log("CONNECTIVITY %v", now)
				c.Engine().SetOnline(now)
			}
		}
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
