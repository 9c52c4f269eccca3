package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTypingCmd creates the typing command.
func NewTypingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "typing <chat>",
		Short: "Publish a typing indicator",
		Args:  cobra.ExactArgs(1),
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

			stop, _ := cmd.Flags().GetBool("stop")
			p, err := ctx.newProducer()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer p.Close()

			if err := p.Bus.UpdateTypingStatus(args[0], as, !stop); err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{"chat_id": args[0], "user_id": as, "typing": !stop})
			}
			state := "typing"
			if stop {
				state = "stopped typing"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s in %s\n", as, state, args[0])
			return nil
		},
	}

	cmd.Flags().String("as", "", "typing user")
	cmd.Flags().Bool("stop", false, "publish typing=false")
	return cmd
}
