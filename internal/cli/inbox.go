package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/usecase"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show inbox totals and the age of the oldest pending message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDeps(cmd.Context(), func(_ *config.Config, deps *Deps) error {
				stats, err := usecase.NewGetStats(deps.Reader).Execute(cmd.Context())
				if err != nil {
					return err
				}

				out := rootOpts.formatter(cmd.OutOrStdout())
				if out.JSON() {
					return out.WriteJSON(stats)
				}
				out.Printf("total:     %d\n", stats.Total)
				out.Printf("pending:   %d\n", stats.Pending)
				out.Printf("processed: %d\n", stats.Processed)
				if stats.OldestPendingAge != "" {
					out.Printf("oldest pending age: %s\n", stats.OldestPendingAge)
				}
				return nil
			})
		},
	}
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List unprocessed messages in claim order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDeps(cmd.Context(), func(_ *config.Config, deps *Deps) error {
				messages, err := usecase.NewListPending(deps.Reader).Execute(cmd.Context(), limit)
				if err != nil {
					return err
				}

				out := rootOpts.formatter(cmd.OutOrStdout())
				if out.JSON() {
					return out.WriteJSON(messages)
				}
				rows := make([][]string, 0, len(messages))
				for _, m := range messages {
					rows = append(rows, []string{m.ID, m.EventType, m.Topic, m.TraceID, m.CreatedAt.Format(time.RFC3339)})
				}
				return out.Table([]string{"ID", "EVENT TYPE", "TOPIC", "TRACE ID", "CREATED AT"}, rows)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", usecase.DefaultPendingLimit, "maximum number of messages, up to "+strconv.Itoa(usecase.MaxPendingLimit))
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show one inbox message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDeps(cmd.Context(), func(_ *config.Config, deps *Deps) error {
				msg, err := usecase.NewGetMessage(nil, deps.Reader, 0).Execute(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := rootOpts.formatter(cmd.OutOrStdout())
				if out.JSON() {
					return out.WriteJSON(msg)
				}
				out.Printf("id:           %s\n", msg.ID)
				out.Printf("topic:        %s\n", msg.Topic)
				out.Printf("event type:   %s\n", msg.EventType)
				out.Printf("trace id:     %s\n", msg.TraceID)
				out.Printf("processed:    %t\n", msg.IsProcessed)
				out.Printf("created at:   %s\n", msg.CreatedAt.Format(time.RFC3339Nano))
				out.Printf("updated at:   %s\n", msg.UpdatedAt.Format(time.RFC3339Nano))
				out.Printf("payload:      %s\n", msg.Payload)
				return nil
			})
		},
	}
}
