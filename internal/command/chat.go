package command

import (
	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/chat"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <chat>",
		Short: "Open the terminal chat client",
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

			notify, _ := cmd.Flags().GetBool("notify")
			history, _ := cmd.Flags().GetInt("history")

			err = chat.Run(cmd.Context(), chat.Options{
				DB:           ctx.DB,
				ChatID:       args[0],
				UserID:       as,
				History:      history,
				TypingExpiry: ctx.Config.TypingExpiry,
				Notify:       notify,
				Logger:       ctx.Logger,
				NewBus: func(executor bus.Executor, onDegraded func(error)) (*bus.Bus, error) {
					return ctx.NewBus(executor, onDegraded)
				},
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}

	cmd.Annotations = map[string]string{sessionAnnotation: "true"}
	cmd.Flags().String("as", "", "user to chat as")
	cmd.Flags().Bool("notify", false, "show desktop notifications for new messages")
	cmd.Flags().Int("history", 200, "messages of history to load")
	return cmd
}
