package command

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/types"
)

type newChatResult struct {
	Chat    types.Chat `json:"chat"`
	Members []string   `json:"members"`
}

// NewNewCmd creates the new command.
func NewNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <chat>",
		Short: "Create a chat with its members",
		Long: `Create a chat and add its members. Unknown members are added as users
with their id as display name.

Examples:
  chatbus new general --members alice,bob,carol
  chatbus new alice-bob --members alice,bob --kind direct`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			membersFlag, _ := cmd.Flags().GetString("members")
			kind, _ := cmd.Flags().GetString("kind")
			name, _ := cmd.Flags().GetString("name")

			members := splitCommaList(membersFlag)
			if len(members) == 0 {
				return writeCommandError(cmd, fmt.Errorf("--members is required"))
			}
			if types.ChatKind(kind) == types.ChatDirect && len(members) != 2 {
				return writeCommandError(cmd, fmt.Errorf("direct chats have exactly two members, got %d", len(members)))
			}

			tx, err := ctx.DB.Begin()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer tx.Rollback()

			chat, err := db.CreateChat(tx, types.Chat{ID: args[0], Name: name, Kind: types.ChatKind(kind)})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			for _, member := range members {
				user, err := db.GetUser(tx, member)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if user == nil {
					if _, err := db.UpsertUser(tx, member, ""); err != nil {
						return writeCommandError(cmd, err)
					}
				}
				if err := db.AddMember(tx, chat.ID, member); err != nil {
					return writeCommandError(cmd, err)
				}
			}
			if err := tx.Commit(); err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, newChatResult{Chat: chat, Members: members})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s chat %s with %s\n", chat.Kind, chat.ID, strings.Join(members, ", "))
			return nil
		},
	}

	cmd.Flags().String("members", "", "comma-separated member ids")
	cmd.Flags().String("kind", string(types.ChatGroup), "chat kind: direct, group or channel")
	cmd.Flags().String("name", "", "display name (defaults to the id)")
	return cmd
}
