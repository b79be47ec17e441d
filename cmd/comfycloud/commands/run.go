package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/comfycloud/lazymodels/pkg/comfy"
	"github.com/comfycloud/lazymodels/pkg/events"
	"github.com/comfycloud/lazymodels/pkg/mirror"
	"github.com/comfycloud/lazymodels/pkg/models"
	"github.com/comfycloud/lazymodels/pkg/vast"
	"github.com/comfycloud/lazymodels/pkg/workflow"
)

const comfyPort = 8188

type runCmdFlags struct {
	gpu       string
	price     float64
	keepAlive bool
	comfyArgs string
	outputDir string
}

func newRunCmd() *cobra.Command {
	flags := &runCmdFlags{}

	cmd := &cobra.Command{
		Use:   "run WORKFLOW",
		Short: "Run a workflow on a freshly rented GPU instance",
		Long: `Run analyzes the workflow's model references, optionally syncs the local
model library to its cloud mirror, rents the cheapest matching GPU offer,
boots the serving image with the lazy-loading agent, submits the workflow,
and downloads the generated outputs.

Examples:
  comfycloud run workflow.json
  comfycloud run workflow.json --gpu RTX_4090 --price 1.0
  comfycloud run workflow.json --keep-alive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.gpu, "gpu", "", "GPU model to search for (defaults to config)")
	cmd.Flags().Float64Var(&flags.price, "price", 0, "Max price in $/hr (defaults to config)")
	cmd.Flags().BoolVar(&flags.keepAlive, "keep-alive", false, "Keep the instance running after the workflow finishes")
	cmd.Flags().StringVar(&flags.comfyArgs, "comfy-args", "", "Extra arguments appended to the serving process command line")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Directory for generated outputs (defaults to config)")

	return cmd
}

func runRun(cmd *cobra.Command, workflowPath string, flags *runCmdFlags) error {
	ctx := cmd.Context()

	if cfg.APIKey == "" {
		return fmt.Errorf("marketplace API key not set (VAST_API_KEY or api_key in %s)", configFileName)
	}
	if cfg.FolderID == "" {
		return fmt.Errorf("content store folder not set (GDRIVE_FOLDER_ID or folder_id in %s)", configFileName)
	}
	gpu := cfg.GPU
	if flags.gpu != "" {
		gpu = flags.gpu
	}
	price := cfg.MaxPrice
	if flags.price > 0 {
		price = flags.price
	}
	outputDir := cfg.OutputDir
	if flags.outputDir != "" {
		outputDir = flags.outputDir
	}

	raw, err := os.ReadFile(workflowPath)
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}

	// Analyze the workflow against the remote layout so the operator sees
	// what the instance will pull before paying for it.
	table := models.DefaultTable()
	layout := models.NewLayout(models.DefaultModelsPath, table)
	extractor := workflow.NewExtractor(layout, workflow.DefaultLoaderTable())
	paths, err := extractor.Extract(raw)
	if err != nil {
		return err
	}
	printRequiredModels(cmd, paths)

	extraArgs, err := shellwords.Parse(flags.comfyArgs)
	if err != nil {
		return fmt.Errorf("invalid --comfy-args: %w", err)
	}

	cb := newStepPrinter()

	if cfg.ModelsPath != "" && cfg.MirrorPath != "" {
		cb.Step("Sync Models", events.StepActive)
		syncer := mirror.NewSyncer(table, componentLogger("sync"))
		if _, err := syncer.Sync(cfg.ModelsPath, cfg.MirrorPath); err != nil {
			cb.Step("Sync Models", events.StepFailed)
			return fmt.Errorf("syncing models: %w", err)
		}
		cb.Step("Sync Models", events.StepDone)
	}

	client, err := vast.NewClient(vast.ClientConfig{
		APIKey: cfg.APIKey,
		Logger: componentLogger("vast"),
	})
	if err != nil {
		return err
	}

	instance, err := client.Provision(ctx, vast.ProvisionConfig{
		Query: vast.OfferQuery{GPUName: gpu, MaxPrice: price},
		Create: vast.CreateRequest{
			Image:  cfg.Image,
			DiskGB: cfg.DiskGB,
			OnStart: vast.BuildOnStart(vast.OnStartConfig{
				FolderID:  cfg.FolderID,
				Port:      comfyPort,
				ExtraArgs: extraArgs,
			}),
		},
		Port:   comfyPort,
		Events: cb,
	})
	if err != nil {
		return err
	}
	defer func() {
		// The run context may already be cancelled; teardown gets its own.
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if flags.keepAlive {
			cmd.Printf("\nInstance %d kept alive ($%.3f/hr). Stop with: comfycloud stop %d\n",
				instance.ID, instance.DPHTotal, instance.ID)
			return
		}
		if err := client.DestroyInstance(stopCtx, instance.ID); err != nil {
			log.WithError(err).Errorf("failed to destroy instance %d, billing may continue", instance.ID)
			return
		}
		cmd.Printf("Instance %d destroyed, billing stopped.\n", instance.ID)
	}()

	url := instance.URL(comfyPort)
	cmd.Printf("Serving process: %s\n", url)
	server := comfy.NewClient(url)

	if err := waitForComfy(ctx, server, 5*time.Minute); err != nil {
		return err
	}

	promptID, err := server.QueuePrompt(ctx, json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("submitting workflow: %w", err)
	}
	log.Infof("workflow queued as %s", promptID)

	entry, err := waitForHistory(ctx, server, promptID)
	if err != nil {
		return err
	}

	saved := 0
	for _, out := range entry.Outputs {
		for _, img := range out.Images {
			dest, err := server.DownloadOutput(ctx, img, outputDir)
			if err != nil {
				log.WithError(err).Errorf("failed to download %s", img.Filename)
				continue
			}
			cmd.Printf("Saved %s\n", dest)
			saved++
		}
	}
	cmd.Printf("\nComplete: %d output(s) in %s, total cost $%.4f\n",
		saved, outputDir, instance.CostSoFar(time.Now()))
	return nil
}

func printRequiredModels(cmd *cobra.Command, paths []string) {
	if len(paths) == 0 {
		cmd.Println("Workflow references no model files")
		return
	}
	table := tablewriter.NewTable(cmd.OutOrStdout(),
		tablewriter.WithHeader([]string{"REQUIRED MODEL"}),
	)
	for _, p := range paths {
		table.Append([]string{strings.TrimPrefix(p, models.DefaultModelsPath+"/")})
	}
	table.Render()
}

// waitForComfy polls the serving process until its API answers.
func waitForComfy(ctx context.Context, server *comfy.Client, timeout time.Duration) error {
	log.Info("waiting for serving process to initialize")
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := server.Queue(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("serving process not reachable after %s", timeout)
		}
	}
}

// waitForHistory polls until the prompt appears in execution history.
func waitForHistory(ctx context.Context, server *comfy.Client, promptID string) (*comfy.HistoryEntry, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		entry, done, err := server.History(ctx, promptID)
		if err != nil {
			log.Debugf("history poll failed: %v", err)
			continue
		}
		if done {
			return entry, nil
		}
	}
}
