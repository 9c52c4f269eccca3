package command

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/types"
)

type presenceDetails struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Online      bool   `json:"online"`
	LastSeenAt  int64  `json:"last_seen_at,omitempty"`
}

// NewWhoCmd creates the who command.
func NewWhoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "who",
		Short: "Show presence as seen from the retained outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			onlineOnly, _ := cmd.Flags().GetBool("online")

			queue := bus.NewUIQueue()
			defer queue.Close()
			b, err := ctx.NewBus(queue, nil)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			b.WarmPresence()

			users, err := db.ListUsers(ctx.DB)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			details := collectPresence(users, b.Presence().Snapshot())
			if onlineOnly {
				filtered := details[:0]
				for _, d := range details {
					if d.Online {
						filtered = append(filtered, d)
					}
				}
				details = filtered
			}

			if ctx.JSONMode {
				return writeJSON(cmd, details)
			}
			displayPresence(cmd.OutOrStdout(), details)
			return nil
		},
	}

	cmd.Flags().Bool("online", false, "only show online users")
	return cmd
}

// collectPresence merges known users with observed presence. Users seen on
// the bus but missing from the database are still listed.
func collectPresence(users []types.User, entries []types.PresenceEntry) []presenceDetails {
	byID := map[string]*presenceDetails{}
	for _, user := range users {
		byID[user.ID] = &presenceDetails{UserID: user.ID, DisplayName: user.DisplayName}
	}
	for _, entry := range entries {
		d, ok := byID[entry.UserID]
		if !ok {
			d = &presenceDetails{UserID: entry.UserID}
			byID[entry.UserID] = d
		}
		d.Online = entry.Online
		d.LastSeenAt = entry.LastSeenAt
	}

	details := make([]presenceDetails, 0, len(byID))
	for _, d := range byID {
		details = append(details, *d)
	}
	sort.Slice(details, func(i, j int) bool {
		if details[i].Online != details[j].Online {
			return details[i].Online
		}
		return details[i].UserID < details[j].UserID
	})
	return details
}

func displayPresence(out io.Writer, details []presenceDetails) {
	if len(details) == 0 {
		fmt.Fprintln(out, "No users")
		return
	}
	for _, d := range details {
		state := "offline"
		if d.Online {
			state = "online"
		}
		name := d.UserID
		if d.DisplayName != "" && d.DisplayName != d.UserID {
			name = fmt.Sprintf("%s (%s)", d.UserID, d.DisplayName)
		}
		fmt.Fprintf(out, "%-8s %s  last seen %s\n", state, name, formatRelative(d.LastSeenAt))
	}
}
