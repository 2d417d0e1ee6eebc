package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/app"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/config"
)

func main() {
	if err := newRootCommand(buildFromEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// builder opens the service's stores and clients for one command.
type builder func(ctx context.Context) (*app.App, error)

func buildFromEnv(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return app.Build(ctx, cfg, logger)
}

func newRootCommand(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relctl",
		Short:         "Operate the relationships service",
		Long:          "relctl inspects contracts and communities and runs reconciliation sweeps against the configured store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newReconcileCommand(build))
	cmd.AddCommand(newContractCommand(build))
	cmd.AddCommand(newCommunityCommand(build))
	return cmd
}

func newReconcileCommand(build builder) *cobra.Command {
	var failOnRepair bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				rep, err := a.Sweeper.RunOnce(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
				if failOnRepair && (rep.Repairs() > 0 || len(rep.Failures) > 0) {
					return fmt.Errorf("sweep found %d drifted records and %d failures", rep.Repairs(), len(rep.Failures))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnRepair, "fail-on-repair", false, "exit non-zero when anything had drifted")
	return cmd
}

func newContractCommand(build builder) *cobra.Command {
	cmd := &cobra.Command{Use: "contract", Short: "Inspect contracts"}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <ctid>",
		Short: "Print one contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.Contracts.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			})
		},
	})
	return cmd
}

func newCommunityCommand(build builder) *cobra.Command {
	cmd := &cobra.Command{Use: "community", Short: "Inspect communities"}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <comm-id>",
		Short: "Print one community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.Communities.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			})
		},
	})
	return cmd
}

func withApp(cmd *cobra.Command, build builder, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Stores.Close(context.Background()) }()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
