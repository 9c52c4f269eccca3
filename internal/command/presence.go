package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewOnlineCmd creates the online command.
func NewOnlineCmd() *cobra.Command {
	return newPresenceCmd("online", "Publish a user as online", true)
}

// NewOfflineCmd creates the offline command.
func NewOfflineCmd() *cobra.Command {
	return newPresenceCmd("offline", "Publish a user as offline", false)
}

func newPresenceCmd(use, short string, online bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := requireAs(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			p, err := ctx.newProducer()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer p.Close()

			if err := p.Bus.SetUserOnline(as, online); err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{"user_id": as, "online": online})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", as, use)
			return nil
		},
	}

	cmd.Flags().String("as", "", "user to publish")
	return cmd
}
