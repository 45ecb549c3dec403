// Command reporter runs the NexaHealth report form gateway and exposes the
// same operations as one-shot CLI commands.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/nexahealth-reporter/internal/config"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reporter",
		Short: "Report suspicious medicines to NexaHealth",
		Long: `reporter locates the reporter, fills the drug report form and submits it
to the NexaHealth backend. "serve" runs the HTTP gateway used by the web form;
the other commands run a single operation and print JSON.

Configuration is read from the environment (BACKEND_URL, NOMINATIM_URL,
STATE_PATH, KAFKA_ENABLED, ...).`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newLocateCmd(),
		newSubmitCmd(),
		newFlaggedCmd(),
		newPharmacyCmd(),
		newNearbyCmd(),
		newChatCmd(),
		newHistoryCmd(),
		newFeedbackCmd(),
	)
	return root
}

// runFunc is a command body with the wired app.
type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp loads configuration, builds the app and closes it when fn returns.
func withApp(fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			slog.Error("failed to load config", "error", err)
			return err
		}
		logger := observability.NewLogger(cfg)

		a, err := newApp(cfg, logger)
		if err != nil {
			logger.Error("failed to initialize", "error", err)
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Error("close error", "error", err)
			}
		}()
		return fn(cmd.Context(), a, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
