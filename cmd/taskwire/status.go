package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/taskwire"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
		defer func() { _ = client.Close() }()

		cfg := loadConfig().WithDefaults()
		fmt.Printf("Profile:  %s\n", cfg.Profile)
		if cfg.IsOffline() {
			fmt.Println("Server:   (offline-only mode)")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			reachable := client.HealthCheck(ctx)
			cancel()
			fmt.Printf("Server:   %s (reachable: %v)\n", cfg.ServerURL, reachable)
		}
		fmt.Printf("State:    %s\n", client.Phase())

		pending := client.Pending()
		fmt.Printf("Pending:  %d change(s)\n", len(pending))
		for _, change := range pending {
			line := fmt.Sprintf("  %s %s", change.Type, shortID(change.TaskID))
			if change.TaskName != "" {
				line += fmt.Sprintf(" %q", change.TaskName)
			}
			if change.Failed() {
				line += " (failed: " + change.LastError + ")"
			}
			fmt.Println(line)
		}

		fmt.Printf("Upcoming: %d task(s) loaded (%s)\n",
			len(client.Tasks(taskwire.PartitionUpcoming)),
			client.Engine().Loader(taskwire.PartitionUpcoming))
		fmt.Printf("Completed: %d task(s) loaded (%s)\n",
			len(client.Tasks(taskwire.PartitionCompleted)),
			client.Engine().Loader(taskwire.PartitionCompleted))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("taskwire-client/1.0")
	},
}
