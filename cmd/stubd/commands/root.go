// Package commands implements the stubd CLI commands.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	logJSON bool

	// Shared state
	log *logrus.Entry
)

// rootCmd is the root command for stubd.
var rootCmd = &cobra.Command{
	Use:   "stubd",
	Short: "Lazy model loading agent for cloud image-generation instances",
	Long: `stubd runs inside a rented GPU container. It presents the full model
library to the serving process as zero-byte stub files and downloads the
real multi-gigabyte payloads from the content store only when a queued
job references them.

Example:
  stubd run 1AbCdEfGhIjKlMnOpQrStUvWxYz
  # Scans the store folder, creates stubs, and watches the job queue`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if logJSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}

		// Check STUBD_LOG_LEVEL environment variable
		if level := os.Getenv("STUBD_LOG_LEVEL"); level != "" {
			if lvl, err := logrus.ParseLevel(level); err == nil {
				logger.SetLevel(lvl)
			}
		}

		log = logger.WithField("component", "stubd")
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	// Setup context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)
}
