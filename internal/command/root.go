package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "chatbus"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "chatbus - filesystem event bus for local chat processes",
		Long:          "chatbus drives and inspects the filesystem event bus shared by chat processes on one machine.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("root", "", "storage root (default $XDG_STATE_HOME/chatbus)")
	cmd.PersistentFlags().String("config", "", "config file (default <root>/chatbus.yaml)")
	cmd.PersistentFlags().String("instance", "", "process instance name, used for the cursor file (chat and tail default to <command>-<as>)")
	cmd.PersistentFlags().String("db", "", "sqlite database path (default <root>/chatbus.db)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		NewInitCmd(),
		NewUserCmd(),
		NewNewCmd(),
		NewSendCmd(),
		NewTypingCmd(),
		NewReadCmd(),
		NewOnlineCmd(),
		NewOfflineCmd(),
		NewProfileCmd(),
		NewTailCmd(),
		NewWhoCmd(),
		NewCursorCmd(),
		NewGCCmd(),
		NewChatCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
