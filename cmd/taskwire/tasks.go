package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/taskwire"
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a task",
	Long: `Add a task to the list.

The task appears immediately; if the server is unreachable the change
queues locally and syncs later.

Example:
  taskwire add "Buy milk"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
		defer func() { _ = client.Close() }()

		task, err := client.Add(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Added %q (%s)\n", task.Name, shortID(task.ID))
		reportSyncState(client)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(args[0], func(client *taskwire.Client, id string) error {
			return client.Complete(id)
		}, "Completed")
	},
}

var uncompleteCmd = &cobra.Command{
	Use:   "uncomplete <task-id>",
	Short: "Move a task back to upcoming",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(args[0], func(client *taskwire.Client, id string) error {
			return client.Uncomplete(id)
		}, "Uncompleted")
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <task-id> <name>",
	Short: "Rename a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(args[0], func(client *taskwire.Client, id string) error {
			return client.Edit(id, args[1])
		}, "Edited")
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(args[0], func(client *taskwire.Client, id string) error {
			return client.Delete(id)
		}, "Deleted")
	},
}

var (
	listCompleted bool
	listMore      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks for a partition.

Example:
  taskwire list               # upcoming tasks
  taskwire list --completed   # completed tasks
  taskwire list --more        # fetch the next page first`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
		defer func() { _ = client.Close() }()

		partition := taskwire.PartitionUpcoming
		if listCompleted {
			partition = taskwire.PartitionCompleted
		}

		if listMore {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			err := client.LoadMore(ctx, partition)
			cancel()
			switch {
			case errors.Is(err, taskwire.ErrAllLoaded):
				fmt.Println("All tasks already loaded.")
			case err != nil:
				return fmt.Errorf("load more: %w", err)
			}
		}

		tasks := client.Tasks(partition)
		if len(tasks) == 0 {
			fmt.Printf("No %s tasks.\n", partition)
			return nil
		}

		for _, t := range tasks {
			marker := "[ ]"
			if t.Completed() {
				marker = "[x]"
			}
			fmt.Printf("%s %s  %s\n", marker, shortID(t.ID), t.Name)
		}

		if client.Engine().Loader(partition) == taskwire.PaginatorNotAllLoaded {
			fmt.Println("(more available: taskwire list --more)")
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listCompleted, "completed", false, "List completed tasks instead of upcoming")
	listCmd.Flags().BoolVar(&listMore, "more", false, "Fetch the next page from the server before listing")
}

// runMutation resolves a task ID prefix, applies the mutation and reports
// the resulting sync state.
func runMutation(idArg string, fn func(*taskwire.Client, string) error, verb string) error {
	client, err := openClient()
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer func() { _ = client.Close() }()

	id, err := resolveTaskID(client, idArg)
	if err != nil {
		return err
	}

	if err := fn(client, id); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", verb, shortID(id))
	reportSyncState(client)
	return nil
}

// resolveTaskID accepts a full UUID or an unambiguous prefix.
func resolveTaskID(client *taskwire.Client, arg string) (string, error) {
	var matches []string
	for _, p := range []taskwire.Partition{taskwire.PartitionUpcoming, taskwire.PartitionCompleted} {
		for _, t := range client.Tasks(p) {
			if t.ID == arg {
				return t.ID, nil
			}
			if strings.HasPrefix(t.ID, arg) {
				matches = append(matches, t.ID)
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", arg, len(matches))
	}
}

func reportSyncState(client *taskwire.Client) {
	switch client.Phase() {
	case taskwire.PhaseAllSynced, taskwire.PhaseIdle:
		fmt.Println("Synced.")
	case taskwire.PhaseSomeFailed:
		fmt.Println("Some changes failed to sync; run 'taskwire status' for details.")
	default:
		if n := len(client.Pending()); n > 0 {
			fmt.Printf("%d change(s) pending sync.\n", n)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
