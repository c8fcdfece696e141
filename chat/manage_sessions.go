package chat

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/finlens/copilot/internal/cli"
	"github.com/finlens/copilot/session"
)

// NewRenameSessionCmd instantiates and returns the session rename command.
func NewRenameSessionCmd(sessions *session.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Long:  "Rename a session",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cobra.CheckErr(sessions.Hydrate(ctx))
			cobra.CheckErr(sessions.RenameSession(ctx, args[0], args[1]))
		},
	}
}

// NewDeleteSessionCmd instantiates and returns the session delete command.
func NewDeleteSessionCmd(sessions *session.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Long:  "Delete a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cobra.CheckErr(sessions.Hydrate(ctx))
			if !cli.QueryUser("Delete session " + args[0] + "?") {
				return
			}
			cobra.CheckErr(sessions.RemoveSession(ctx, args[0]))
		},
	}
}

// NewClearSessionsCmd instantiates and returns the session clear command.
func NewClearSessionsCmd(sessions *session.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every session",
		Long:  "Delete every session",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cobra.CheckErr(sessions.Hydrate(ctx))
			if !cli.QueryUser("Delete ALL sessions?") {
				return
			}
			cobra.CheckErr(sessions.ClearSessions(ctx))
		},
	}
}
