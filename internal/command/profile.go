package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/service"
	"github.com/adamavenir/chatbus/internal/types"
)

// NewProfileCmd creates the profile command.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update a profile and tell other processes to re-fetch it",
		Long: `Update display name, status or avatar. Pass an empty value to clear
status or avatar.

Examples:
  chatbus profile --as alice --name "Alice L."
  chatbus profile --as alice --status "in a meeting"
  chatbus profile --as alice --status ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := requireAs(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			update := service.ProfileUpdate{
				DisplayName: optionalFlag(cmd, "name"),
				Status:      optionalFlag(cmd, "status"),
				Avatar:      optionalFlag(cmd, "avatar"),
			}
			if !update.DisplayName.Set && !update.Status.Set && !update.Avatar.Set {
				return writeCommandError(cmd, fmt.Errorf("nothing to update: pass --name, --status or --avatar"))
			}
			if update.DisplayName.Set && update.DisplayName.Value == nil {
				return writeCommandError(cmd, fmt.Errorf("--name cannot be empty"))
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

			result, err := p.Service.UpdateProfile(as, update)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			reportPropagation(cmd, result)

			user, err := db.GetUser(ctx.DB, as)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", as)
			return nil
		},
	}

	cmd.Flags().String("as", "", "user to update")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("status", "", "status text")
	cmd.Flags().String("avatar", "", "avatar reference")
	return cmd
}

// optionalFlag maps a string flag to an update. Unset flags are left alone
// and empty values clear the field.
func optionalFlag(cmd *cobra.Command, name string) types.OptionalString {
	if !cmd.Flags().Changed(name) {
		return types.OptionalString{}
	}
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return types.OptionalString{Set: true}
	}
	return types.OptionalString{Set: true, Value: &value}
}
