package main

import (
	"fmt"
	"os"
	"path/filepath"

	"smart-task-manager/internal/client"
	"smart-task-manager/internal/client/ai"
	"smart-task-manager/internal/client/localstore"
	"smart-task-manager/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the wired client stack shared by all subcommands.
type app struct {
	store     *localstore.Store
	session   *client.SessionManager
	tasks     *client.TaskClient
	suggester *ai.Suggester
	logger    *zap.Logger
}

var (
	serverURL string
	storePath string
	verbose   bool

	cliApp *app
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskctl",
		Short: "Manage tasks from the terminal",
		Long: `taskctl talks to a Smart Task Manager server. It keeps a local
mirror of your session and tasks, so reads keep working and writes
queue up when the server is unreachable; run "taskctl sync" to push
queued changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cliApp, err = newApp()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cliApp != nil {
				cliApp.close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TASKCTL_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", defaultStorePath(), "path to the local state file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newSignupCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newProfileCmd(),
		newListCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newCompleteCmd(),
		newDeleteCmd(),
		newSyncCmd(),
		newSuggestCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() (*app, error) {
	logger := zap.NewNop()
	if verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	store, err := localstore.Open(storePath)
	if err != nil {
		return nil, err
	}

	api := client.NewAPI(serverURL)
	session := client.NewSessionManager(api, store, logger)

	tasks, err := client.NewTaskClient(api, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		store.Close()
		return nil, err
	}

	suggester := ai.NewSuggester(ai.Config{
		APIKey:   cfg.AI.APIKey,
		Endpoint: cfg.AI.Endpoint,
		Model:    cfg.AI.Model,
		Timeout:  cfg.AI.Timeout,
	}, logger)

	return &app{
		store:     store,
		session:   session,
		tasks:     tasks,
		suggester: suggester,
		logger:    logger,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close local store", zap.Error(err))
	}
}

func (a *app) requireAuth() error {
	if !a.session.Current().Authenticated() {
		return fmt.Errorf("not signed in; run \"taskctl login\" first")
	}
	return nil
}

func defaultStorePath() string {
	if path := os.Getenv("TASKCTL_STORE"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskctl.db"
	}
	return filepath.Join(home, ".taskctl.db")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
