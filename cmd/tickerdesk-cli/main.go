package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tickerdesk/internal/app"
	"tickerdesk/internal/config"
	"tickerdesk/internal/util"
)

const version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "tickerdesk-cli",
		Short:         "Manage the tickerdesk watchlist from the command line",
		Long:          `tickerdesk-cli edits the watchlist, syncs it to the hosting repository and renders the briefing prompt without the terminal UI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default $TICKERDESK_CONFIG or config/tickerdesk.yaml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newVersionCmd(),
		newListCmd(flags),
		newAddCmd(flags),
		newRemoveCmd(flags),
		newRefreshCmd(flags),
		newTriggerCmd(flags),
		newStatusCmd(flags),
		newPromptCmd(flags),
		newConfigCmd(flags),
		newHistoryCmd(flags),
	)
	return root
}

// withApp opens the App, streams store notifications to stderr while fn runs
// and waits for background edits before closing.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	path := flags.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	logger := util.NewWriterLogger(cmd.ErrOrStderr(), level, "text")

	a, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}

	_, notes := a.Store.Subscribe(32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range notes {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", n.Kind, n.Message)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runErr := fn(ctx, a)

	a.Store.Wait()
	closeErr := a.Close()
	<-done

	if runErr != nil {
		return runErr
	}
	return closeErr
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
