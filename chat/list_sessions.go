package chat

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/finlens/copilot/internal/cli"
	"github.com/finlens/copilot/session"
)

// NewListSessionsCmd instantiates and returns the session list command.
func NewListSessionsCmd(sessions *session.Store) *cobra.Command {
	var opts struct {
		PageSize int
	}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List all sessions",
		Long:  "List all sessions",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cobra.CheckErr(sessions.Hydrate(ctx))

			// Headers.
			cli.Title("COPILOT SESSIONS")

			all := sessions.Sessions()
			if len(all) > opts.PageSize {
				all = all[:opts.PageSize]
			}
			for _, sess := range all {
				title := sess.Title
				if title == "" {
					title = "(untitled)"
				}
				cli.AIOutput("session (%s) %s - %s\n", sess.ID, title, time.UnixMicro(sess.UpdateTimestamp).String())
				for i := 0; i < 3 && i < len(sess.Messages); i++ {
					if sess.Messages[i].Role == session.RoleUser {
						cli.UserInput("> %s\n", sess.Messages[i].Content)
					}
				}
			}
		},
	}

	cmd.Flags().IntVarP(&opts.PageSize, "page-size", "p", 50, "Page size")
	return cmd
}
