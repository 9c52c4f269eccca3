package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/core"
)

type gcResult struct {
	Removed   int    `json:"removed"`
	OlderThan string `json:"older_than"`
	Head      int64  `json:"head"`
}

// NewGCCmd creates the gc command.
func NewGCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove event records past retention",
		Long: `Remove published records older than the retention window. The newest
record is always kept. Pollers that fall behind a purge resync from the
database.

Examples:
  chatbus gc
  chatbus gc --older-than 2h
  chatbus gc --older-than 7d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			olderThan := ctx.Config.Retention
			if value, _ := cmd.Flags().GetString("older-than"); value != "" {
				olderThan, err = core.ParseAge(value)
				if err != nil {
					return writeCommandError(cmd, err)
				}
			}
			if olderThan <= 0 {
				return writeCommandError(cmd, fmt.Errorf("retention is disabled; pass --older-than"))
			}

			store := ctx.Outbox()
			removed, err := store.Purge(olderThan)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			head, err := store.Head()
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, gcResult{Removed: removed, OlderThan: olderThan.String(), Head: head})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records older than %s (head %d)\n", removed, olderThan, head)
			return nil
		},
	}

	cmd.Flags().String("older-than", "", "age cutoff, e.g. 90m, 24h, 7d (default: retention)")
	return cmd
}
