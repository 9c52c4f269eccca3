package command

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/cursor"
)

type cursorDetails struct {
	cursor.State
	Exists bool   `json:"exists"`
	Head   int64  `json:"head"`
	Path   string `json:"path"`
}

// NewCursorCmd creates the cursor command group.
func NewCursorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or reset this instance's read position",
		Long: `Each instance keeps a cursor with the last sequence id it processed.
A new instance starts at the outbox head; resetting the cursor replays
retained events on the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newCursorShowCmd(), newCursorResetCmd())
	return cmd
}

func newCursorShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cursor and the outbox head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			tracker := ctx.Cursor()
			state, exists, err := tracker.Read()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			head, err := ctx.Outbox().Head()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			details := cursorDetails{State: state, Exists: exists, Head: head, Path: tracker.Path()}
			if ctx.JSONMode {
				return writeJSON(cmd, details)
			}

			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "%s: no cursor yet (head %d)\n", tracker.ProcessID(), head)
				return nil
			}
			fmt.Fprintf(out, "%s: at %d of %d, updated %s\n",
				tracker.ProcessID(), state.LastSeq, head, formatRelative(state.UpdatedAt))
			return nil
		},
	}
}

func newCursorResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [seq]",
		Short: "Move the cursor back (default 0, replay everything retained)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seq int64
			if len(args) == 1 {
				parsed, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return writeCommandError(cmd, fmt.Errorf("invalid sequence id: %s", args[0]))
				}
				seq = parsed
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			tracker := ctx.Cursor()
			if err := tracker.Reset(seq); err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				state, _, err := tracker.Read()
				if err != nil {
					return writeCommandError(cmd, err)
				}
				return writeJSON(cmd, state)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: cursor reset to %d\n", tracker.ProcessID(), seq)
			return nil
		},
	}
}
