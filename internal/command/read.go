package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReadCmd creates the read command.
func NewReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <message>",
		Short: "Mark a message read and publish the receipt",
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

			p, err := ctx.newProducer()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer p.Close()

			result, err := p.Service.MarkRead(args[0], as)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			reportPropagation(cmd, result)
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{"message_id": args[0], "user_id": as, "propagated": result.Propagated()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s read %s\n", as, args[0])
			return nil
		},
	}

	cmd.Flags().String("as", "", "reading user")
	return cmd
}
