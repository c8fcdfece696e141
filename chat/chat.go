// Package chat holds the copilot CLI commands.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/internal/cli"
	"github.com/finlens/copilot/internal/configuration"
	"github.com/finlens/copilot/quota"
	"github.com/finlens/copilot/session"
	"github.com/finlens/copilot/turn"
)

// NewCmd instantiates and returns the chat command.
func NewCmd(config *configuration.Config, sessions *session.Store, runner *turn.Runner, guard *quota.Guard) *cobra.Command {
	var opts struct {
		SessionID string
		FilingID  string
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Back and forth research chat",
		Long:  "Back and forth research chat",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cobra.CheckErr(sessions.Hydrate(ctx))

			if opts.SessionID != "" {
				cobra.CheckErr(sessions.SetActiveSession(opts.SessionID))
			}
			var sessionContext *session.Context
			if opts.FilingID != "" {
				sessionContext = &session.Context{Type: session.ContextFiling, ReferenceID: opts.FilingID}
			} else {
				sessionContext = &session.Context{Type: session.ContextCustom}
			}

			// Headers.
			cli.Title("FINLENS COPILOT")

			// Print history.
			if active := sessions.ActiveSession(); active != nil {
				for _, message := range active.Messages {
					if message.Role == session.RoleUser {
						cli.UserInput("> %s\n", message.Content)
					}
					if message.Role == session.RoleAssistant {
						cli.AIOutput(message.Content + "\n")
					}
				}
			}

			for {
				// Query user for prompt.
				text, err := cli.PromptUser()
				cobra.CheckErr(err)
				if text == "" {
					continue
				}

				// Quick feedback so user knows the query has been submitted.
				cli.AIOutput("COPILOT: ")

				turnCtx, cancel := context.WithTimeout(ctx, time.Duration(config.RequestTimeout)*time.Second)
				messageID, err := runner.Ask(turnCtx, text, sessionContext)
				cancel()
				cobra.CheckErr(err)
				cli.AIOutput("\n")

				active := sessions.ActiveSession()
				if active == nil {
					continue
				}
				printEvidence(active.Evidence)

				// Offer a retry when the turn failed and is retryable.
				if message, ok := sessions.Message(active.ID, messageID); ok {
					if message.Meta.Status == session.StatusError && message.Meta.Retryable {
						if cli.QueryUser("The turn failed. Retry it?") {
							cli.AIOutput("COPILOT: ")
							turnCtx, cancel := context.WithTimeout(ctx, time.Duration(config.RequestTimeout)*time.Second)
							_ = runner.Retry(turnCtx, messageID)
							cancel()
							cli.AIOutput("\n")
						}
					}
				}

				// Quota exhausted: no point prompting for more questions.
				if notice := guard.Active(); notice != nil {
					cli.Info("%s\n", notice.Message)
					return
				}
			}
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "id", "", "resume a specific session")
	cmd.Flags().StringVar(&opts.FilingID, "filing", "", "scope the session to a filing")
	return cmd
}

func printEvidence(state evidence.State) {
	if state.Status != evidence.StatusReady || len(state.Items) == 0 {
		return
	}
	cli.Info("%d sources:\n", len(state.Items))
	for i, item := range state.Items {
		if i == 5 {
			cli.Info("  …\n")
			break
		}
		cli.Info("  [%d] %s%s\n", i+1, item.Title, sourceAnnotations(item))
	}
}

// sourceAnnotations renders the page, filing-diff and self-check markers of
// one evidence item.
func sourceAnnotations(item evidence.Item) string {
	var annotations []string
	if item.Page > 0 {
		annotations = append(annotations, fmt.Sprintf("p.%d", item.Page))
	}
	if item.Diff != nil && item.Diff.Delta != "" {
		if item.Diff.PreviousRef != "" {
			annotations = append(annotations, fmt.Sprintf("changed since %s", item.Diff.PreviousRef))
		} else {
			annotations = append(annotations, "changed since prior filing")
		}
	}
	if item.SelfCheck != nil && item.SelfCheck.Verdict != "" {
		annotations = append(annotations, fmt.Sprintf("self-check: %s", item.SelfCheck.Verdict))
	}
	if len(annotations) == 0 {
		return ""
	}
	return " (" + strings.Join(annotations, ", ") + ")"
}
