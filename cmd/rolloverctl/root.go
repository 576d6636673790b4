package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"trustrails/internal/platform/config"
	"trustrails/internal/platform/logger"
	"trustrails/internal/rollover/app"
)

// Exit codes.
const (
	exitFailure      = 1 // a reconciliation pass failed for at least one transfer
	exitCommandError = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCommandError
}

// builder constructs the component graph for one command invocation.
type builder func(ctx context.Context, cfg config.Config, w io.Writer) (*app.App, error)

func buildApp(ctx context.Context, cfg config.Config, w io.Writer) (*app.App, error) {
	log := logger.NewWithWriter(w, cfg.Log.Level, "text")
	return app.Build(ctx, cfg, log, prometheus.NewRegistry(), app.WithoutFeeds())
}

type rootOptions struct {
	configDir string
	compact   bool
	build     builder

	cfg config.Config
}

func newRootCommand(build builder) *cobra.Command {
	if build == nil {
		build = buildApp
	}
	opts := &rootOptions{build: build}

	cmd := &cobra.Command{
		Use:   "rolloverctl",
		Short: "Inspect and reconcile custodian rollovers",
		Long: `rolloverctl reads the same environment as the server (DATABASE_URL,
REDIS_URL, CONTRACT_VERSION, ...) and talks to the same backends, so a
reconciliation pass run here takes the same per-transfer locks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory holding an optional .env file")
	cmd.PersistentFlags().BoolVar(&opts.compact, "compact", false, "print single-line JSON")

	cmd.AddCommand(
		newStateCommand(opts),
		newViewCommand(opts),
		newEventsCommand(opts),
		newSubmissionsCommand(opts),
		newReconcileCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

// withApp builds the graph, runs fn and releases the backends.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.build(ctx, o.cfg, cmd.ErrOrStderr())
	if err != nil {
		return &exitError{code: exitCommandError, err: fmt.Errorf("connect: %w", err)}
	}
	defer a.Close()
	return fn(ctx, a)
}

func (o *rootOptions) print(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !o.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
