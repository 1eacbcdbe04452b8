package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// OutboxAdmin is the outbox maintenance surface.
type OutboxAdmin interface {
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Deps are the connected stores a command works against. Outbox is nil when
// the storage driver has no outbox table.
type Deps struct {
	Reader      inbox.Reader
	Outbox      OutboxAdmin
	ApplySchema func(ctx context.Context) error
	Close       func()
}

// Connector opens Deps for cfg.
type Connector func(ctx context.Context, cfg *config.Config) (*Deps, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string

	connect Connector
}

// NewRootCommand creates the root command for inboxctl.
func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "inboxctl",
		Short: "Inspect and maintain the message inbox",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (default $CONFIG_PATH or config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigPath != "" {
		return config.Load(o.ConfigPath)
	}
	return config.New()
}

// withDeps loads config, connects and runs fn, closing the connections after.
func (o *RootOptions) withDeps(ctx context.Context, fn func(cfg *config.Config, deps *Deps) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	deps, err := o.connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if deps.Close != nil {
		defer deps.Close()
	}

	return fn(cfg, deps)
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
