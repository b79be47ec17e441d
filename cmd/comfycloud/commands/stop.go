package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/comfycloud/lazymodels/pkg/vast"
)

type stopFlags struct {
	all bool
}

func newStopCmd() *cobra.Command {
	flags := &stopFlags{}

	cmd := &cobra.Command{
		Use:   "stop [INSTANCE_ID]",
		Short: "Destroy rented instances and stop billing",
		Long: `Stop destroys one instance by ID, or every running instance with --all.
Without arguments it lists running instances.

Examples:
  comfycloud stop 1234567
  comfycloud stop --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "Destroy all running instances")

	return cmd
}

func runStop(cmd *cobra.Command, args []string, flags *stopFlags) error {
	ctx := cmd.Context()

	if cfg.APIKey == "" {
		return fmt.Errorf("marketplace API key not set (VAST_API_KEY or api_key in %s)", configFileName)
	}
	client, err := vast.NewClient(vast.ClientConfig{
		APIKey: cfg.APIKey,
		Logger: componentLogger("vast"),
	})
	if err != nil {
		return err
	}

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid instance ID %q", args[0])
		}
		if err := client.DestroyInstance(ctx, id); err != nil {
			return err
		}
		cmd.Printf("Instance %d destroyed, billing stopped.\n", id)
		return nil
	}

	instances, err := client.Instances(ctx)
	if err != nil {
		return err
	}
	running := instances[:0]
	for _, i := range instances {
		if i.Running() {
			running = append(running, i)
		}
	}
	if len(running) == 0 {
		cmd.Println("No running instances")
		return nil
	}

	if !flags.all {
		now := time.Now()
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"INSTANCE", "GPU", "$/HR", "UPTIME", "COST"}),
		)
		for _, i := range running {
			table.Append([]string{
				fmt.Sprintf("%d", i.ID),
				i.GPUName,
				fmt.Sprintf("%.3f", i.DPHTotal),
				i.Uptime(now).Round(time.Second).String(),
				fmt.Sprintf("$%.4f", i.CostSoFar(now)),
			})
		}
		table.Render()
		cmd.Println("\nRe-run with --all to destroy these, or pass an instance ID")
		return nil
	}

	for _, i := range running {
		if err := client.DestroyInstance(ctx, i.ID); err != nil {
			return err
		}
		cmd.Printf("Instance %d destroyed.\n", i.ID)
	}
	return nil
}
