package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/core"
	"github.com/adamavenir/chatbus/internal/db"
)

type initResult struct {
	Initialized bool   `json:"initialized"`
	Root        string `json:"root"`
	DBPath      string `json:"db_path"`
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the storage root and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			jsonMode, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			root, err := core.InitRoot(cfg.Root, force)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			conn, err := db.OpenDatabase(cfg.DBPath)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer conn.Close()

			result := initResult{Initialized: true, Root: root.Path, DBPath: cfg.DBPath}
			if jsonMode {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized chatbus at %s\n", root.Path)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "reinitialize, removing the existing database")
	return cmd
}
