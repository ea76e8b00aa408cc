package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/taskwire/internal/server"
)

var (
	flagAddr   string
	flagDBPath string
	flagTokens []string
)

var rootCmd = &cobra.Command{
	Use:   "taskwired",
	Short: "Taskwire sync server",
	Long: `Taskwired serves the Taskwire sync protocol: it accepts change
batches from clients, applies them at most once, and pages out the
authoritative task list.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "Listen address")
	rootCmd.Flags().StringVar(&flagDBPath, "db-path", "taskwired.db", "Path to the server database")
	rootCmd.Flags().StringArrayVar(&flagTokens, "token", nil, "Accepted credential as token:user-id (repeatable)")
}

func run(cmd *cobra.Command, args []string) error {
	tokens, err := parseTokens(flagTokens)
	if err != nil {
		return err
	}
	if env := os.Getenv("TASKWIRED_TOKENS"); env != "" && len(tokens) == 0 {
		tokens, err = parseTokens(strings.Split(env, ","))
		if err != nil {
			return err
		}
	}
	if len(tokens) == 0 {
		return fmt.Errorf("no credentials configured; pass --token token:user-id or set TASKWIRED_TOKENS")
	}

	store, err := server.OpenStore(flagDBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	srv := server.NewServer(store, tokens)
	fmt.Printf("taskwired listening on %s\n", flagAddr)
	return srv.Run(flagAddr)
}

func parseTokens(entries []string) (server.StaticTokens, error) {
	tokens := server.StaticTokens{}
	for _, entry := range entries {
		token, userID, found := strings.Cut(strings.TrimSpace(entry), ":")
		if !found || token == "" || userID == "" {
			return nil, fmt.Errorf("invalid credential %q, want token:user-id", entry)
		}
		tokens[token] = userID
	}
	return tokens, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
