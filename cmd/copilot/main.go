package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/finlens/copilot/chat"
	"github.com/finlens/copilot/internal/cli"
	"github.com/finlens/copilot/internal/configuration"
	"github.com/finlens/copilot/internal/file"
	"github.com/finlens/copilot/internal/telemetry"
	"github.com/finlens/copilot/internal/tools"
	"github.com/finlens/copilot/notify"
	"github.com/finlens/copilot/quota"
	"github.com/finlens/copilot/rag"
	"github.com/finlens/copilot/session"
	"github.com/finlens/copilot/store"
	"github.com/finlens/copilot/turn"
)

const configFilepath = "~/.config/copilot/config.json"

var rootCmd = &cobra.Command{
	Use:     "copilot",
	Short:   "A CLI for the FinLens research copilot",
	Version: "1.0",
}

func main() {
	config, err := configuration.Parse(configFilepath)
	if err != nil {
		panic(err)
	}

	logger, err := telemetry.InitLogger(config.LogFile)
	if err != nil {
		panic(err)
	}
	tracer, shutdownTracing, err := telemetry.InitTracing(context.Background(), config.LogFile)
	if err != nil {
		panic(err)
	}
	defer shutdownTracing()

	// Create persistence
	if err := file.CreateDirectoryIfNotExist(filepath.Dir(config.Database)); err != nil {
		panic(err)
	}
	persistence, err := store.New(config.Database)
	if err != nil {
		panic(err)
	}
	// Ensure the store is closed when the program exits normally
	defer persistence.Close()

	notifier := notify.NewCLINotifier()
	sessions := session.NewStore(persistence, notifier, logger)
	guard := quota.NewGuard(config.Plan.Tier, config.Plan.DailyLimit)
	backend := rag.NewHTTPClient(config.BackendHost, config.BackendAPIKey, time.Duration(config.RequestTimeout)*time.Second)
	runner := turn.NewRunner(sessions, backend, guard, notifier,
		turn.WithLogger(logger),
		turn.WithTracer(tracer),
		turn.WithOnDelta(printDelta),
		turn.WithToolDispatcher(tools.NewAnnouncer(notifier, logger)),
	)

	sessionsCmd := chat.NewListSessionsCmd(sessions)
	sessionsCmd.AddCommand(chat.NewRenameSessionCmd(sessions))
	sessionsCmd.AddCommand(chat.NewDeleteSessionCmd(sessions))
	sessionsCmd.AddCommand(chat.NewClearSessionsCmd(sessions))

	rootCmd.AddCommand(chat.NewCmd(config, sessions, runner, guard))
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.Execute()
}

// printDelta renders streamed chunks as they arrive.
func printDelta(delta string) {
	cli.AIOutput(delta)
}
