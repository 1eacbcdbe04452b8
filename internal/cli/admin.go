package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/infrastructure/mysql"
	"github.com/radugaboost/message-inbox/internal/infrastructure/postgres"
)

var ErrNoOutbox = errors.New("the configured storage driver has no outbox")

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the DDL for the configured storage driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ddl := postgres.Schema()
			if cfg.Storage.Driver == config.DriverMySQL {
				ddl = mysql.Schema()
			}
			rootOpts.formatter(cmd.OutOrStdout()).Printf("%s", ddl)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDeps(cmd.Context(), func(cfg *config.Config, deps *Deps) error {
				if err := deps.ApplySchema(cmd.Context()); err != nil {
					return err
				}
				rootOpts.formatter(cmd.OutOrStdout()).Printf("schema applied (%s)\n", cfg.Storage.Driver)
				return nil
			})
		},
	})

	return cmd
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			return config.Print(cmd.OutOrStdout(), cfg)
		},
	})

	return cmd
}

// NewOutboxCommand creates the outbox command group.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Maintain the outbox table",
	}

	var olderThan time.Duration
	release := &cobra.Command{
		Use:   "release-stale",
		Short: "Return events stuck in processing to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDeps(cmd.Context(), func(_ *config.Config, deps *Deps) error {
				if deps.Outbox == nil {
					return ErrNoOutbox
				}
				n, err := deps.Outbox.ReleaseStale(cmd.Context(), olderThan)
				if err != nil {
					return err
				}

				out := rootOpts.formatter(cmd.OutOrStdout())
				if out.JSON() {
					return out.WriteJSON(map[string]int64{"released": n})
				}
				out.Printf("released %d events\n", n)
				return nil
			})
		},
	}
	release.Flags().DurationVar(&olderThan, "older-than", 5*time.Minute, "only release events in processing for longer than this")
	cmd.AddCommand(release)

	return cmd
}
