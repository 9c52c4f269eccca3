package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/service"
	"github.com/adamavenir/chatbus/internal/types"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <chat> [body]",
		Short: "Store a message and broadcast it to other processes",
		Args:  cobra.RangeArgs(1, 2),
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

			body := ""
			if len(args) > 1 {
				body = args[1]
			}
			mediaRef, _ := cmd.Flags().GetString("media")
			mediaType, _ := cmd.Flags().GetString("media-type")
			var media *service.Media
			if mediaRef != "" {
				media = &service.Media{Ref: mediaRef, Type: types.MediaType(mediaType)}
			}

			p, err := ctx.newProducer()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer p.Close()

			msg, result, err := p.Service.SendMessage(args[0], as, body, media)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			reportPropagation(cmd, result)
			if ctx.JSONMode {
				return writeJSON(cmd, msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", msg.ID, msg.SenderID, msg.Body)
			return nil
		},
	}

	cmd.Flags().String("as", "", "sending user")
	cmd.Flags().String("media", "", "attachment reference")
	cmd.Flags().String("media-type", "", "attachment type: image, voice or file")
	return cmd
}
