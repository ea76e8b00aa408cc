package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/taskwire"
)

var syncDiscardFailed bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending changes to the server",
	Long: `Push the pending changelog to the server.

Example:
  taskwire sync                   # push everything pending
  taskwire sync --discard-failed  # drop failed changes and reload`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDiscardFailed, "discard-failed", false, "Discard failed changes and reload from the server")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.ServerURL == "" {
		return fmt.Errorf("TASKWIRE_SERVER_URL not configured")
	}

	client, err := taskwire.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if syncDiscardFailed {
		if client.Phase() != taskwire.PhaseSomeFailed {
			fmt.Println("No failed changes to discard.")
			return nil
		}
		client.DiscardFailed()
		fmt.Println("Discarded failed changes and reloaded from the server.")
		return nil
	}

	pending := len(client.Pending())
	if pending == 0 {
		fmt.Println("Nothing to sync.")
		return nil
	}

	start := time.Now()

	// Opening the client already folded the persisted log and, when the
	// server was reachable, ran a sync cycle. Reconnect or retry here if
	// it did not settle.
	switch client.Phase() {
	case taskwire.PhasePassiveError:
		client.RetrySync()
	case taskwire.PhaseBeforeSyncing:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		online := client.HealthCheck(ctx)
		cancel()
		if !online {
			return fmt.Errorf("server unreachable; %d change(s) remain queued", pending)
		}
		client.Engine().SetOnline(true)
	}

	switch phase := client.Phase(); phase {
	case taskwire.PhaseSomeFailed:
		remaining := client.Pending()
		fmt.Printf("Sync finished with failures (took %s):\n", time.Since(start).Round(time.Millisecond))
		for _, change := range remaining {
			if change.Failed() {
				fmt.Printf("  %s %s: %s\n", change.Type, shortID(change.TaskID), change.LastError)
			}
		}
		fmt.Println("Run 'taskwire sync --discard-failed' to drop them and reload.")
		return nil
	case taskwire.PhasePassiveError:
		return fmt.Errorf("sync failed; %d change(s) remain queued", len(client.Pending()))
	default:
		fmt.Printf("Synced %d change(s) (took %s)\n", pending, time.Since(start).Round(time.Millisecond))
		return nil
	}
}
