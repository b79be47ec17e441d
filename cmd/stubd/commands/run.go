package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/comfycloud/lazymodels/pkg/catalog"
	"github.com/comfycloud/lazymodels/pkg/comfy"
	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/metrics"
	"github.com/comfycloud/lazymodels/pkg/models"
	"github.com/comfycloud/lazymodels/pkg/store/gdrive"
	"github.com/comfycloud/lazymodels/pkg/stub"
	"github.com/comfycloud/lazymodels/pkg/watcher"
	"github.com/comfycloud/lazymodels/pkg/workflow"
)

type runFlags struct {
	modelsPath     string
	comfyURL       string
	interval       time.Duration
	categoriesFile string
	loadersFile    string
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run FOLDER_ID",
		Short: "Materialize the model library as stubs and resolve them on demand",
		Long: `Run scans the content store folder, creates a zero-byte stub (plus a
.stub handle marker) for every model not already present, then watches the
serving process's job queue. Each newly queued job has its referenced
models downloaded before execution reaches them.

Examples:
  stubd run 1AbCdEfGhIjKlMnOpQrStUvWxYz
  stubd run 1AbCdEfGhIjKlMnOpQrStUvWxYz --models-path /app/models --interval 2s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.modelsPath, "models-path", models.DefaultModelsPath, "Models directory of the serving process")
	cmd.Flags().StringVar(&flags.comfyURL, "comfy-url", comfy.DefaultBaseURL, "Base URL of the serving process API")
	cmd.Flags().DurationVar(&flags.interval, "interval", watcher.DefaultInterval, "Job queue poll interval")
	cmd.Flags().StringVar(&flags.categoriesFile, "categories-file", "", "YAML file overriding the category table")
	cmd.Flags().StringVar(&flags.loadersFile, "loaders-file", "", "YAML file overriding the loader node table")

	return cmd
}

func runRun(cmd *cobra.Command, folderID string, flags *runFlags) error {
	ctx := cmd.Context()

	table := models.DefaultTable()
	if flags.categoriesFile != "" {
		var err error
		if table, err = models.LoadTable(flags.categoriesFile); err != nil {
			return err
		}
	}
	loaders := workflow.DefaultLoaderTable()
	if flags.loadersFile != "" {
		var err error
		if loaders, err = workflow.LoadLoaderTable(flags.loadersFile); err != nil {
			return err
		}
	}
	layout := models.NewLayout(flags.modelsPath, table)

	st := gdrive.NewClient(gdrive.ClientConfig{
		APIKey:     os.Getenv("GDRIVE_API_KEY"),
		HTTPClient: &http.Client{},
		Logger:     componentLogger("store"),
	})

	// Boot phase: establish the illusion of a full library before the
	// serving process lists its model directories.
	cat := catalog.Scan(ctx, st, folderID, componentLogger("catalog"))
	materializer := stub.NewMaterializer(layout, componentLogger("materializer"))
	if _, err := materializer.Materialize(cat); err != nil {
		return fmt.Errorf("materializing stubs: %w", err)
	}

	tracker := metrics.NewTracker()
	resolver := stub.NewResolver(stub.ResolverConfig{
		Store:   st,
		Logger:  componentLogger("resolver"),
		Tracker: tracker,
	})
	extractor := workflow.NewExtractor(layout, loaders)
	queue := comfy.NewClient(flags.comfyURL)

	w := watcher.New(watcher.Config{
		Queue:     queue,
		Extractor: extractor,
		Resolver:  resolver,
		Logger:    componentLogger("watcher"),
		Interval:  flags.interval,
	})

	workers, workerCtx := errgroup.WithContext(ctx)
	workers.Go(func() error {
		return w.Run(workerCtx)
	})
	err := workers.Wait()

	snap := tracker.Snapshot()
	log.Infof("session summary: %d download(s), %s in %s",
		snap.Downloads, units.HumanSize(float64(snap.TotalBytes)), snap.TotalDuration.Round(time.Second))
	return err
}

// componentLogger derives a named logger from the shared root entry.
func componentLogger(name string) logging.Logger {
	return logging.NewLogrusAdapterFromEntry(log.WithField("component", name))
}
