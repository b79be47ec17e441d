// Package commands implements the comfycloud CLI commands.
package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/comfycloud/lazymodels/pkg/logging"
)

var (
	// Global flags
	verbose bool
	logJSON bool

	// Shared state
	log *logrus.Entry
	cfg Config
)

// rootCmd is the root command for comfycloud.
var rootCmd = &cobra.Command{
	Use:   "comfycloud",
	Short: "Run image-generation workflows on rented cloud GPUs",
	Long: `comfycloud rents a GPU on the marketplace, boots a serving instance whose
model library is lazily loaded from cloud storage, and runs workflows
against it.

Examples:
  comfycloud run workflow.json
  comfycloud run workflow.json --gpu RTX_4090 --price 1.0
  comfycloud offers --gpu RTX_3090
  comfycloud sync
  comfycloud stop --all`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if logJSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
		log = logger.WithField("component", "comfycloud")

		var err error
		cfg, err = loadConfig()
		return err
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
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
		newOffersCmd(),
		newSyncCmd(),
		newStopCmd(),
		newVersionCmd(),
	)
}

// componentLogger derives a named logger from the shared root entry.
func componentLogger(name string) logging.Logger {
	return logging.NewLogrusAdapterFromEntry(log.WithField("component", name))
}
