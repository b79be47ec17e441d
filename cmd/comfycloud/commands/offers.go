package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/comfycloud/lazymodels/pkg/vast"
)

type offersFlags struct {
	gpu   string
	price float64
}

func newOffersCmd() *cobra.Command {
	flags := &offersFlags{}

	cmd := &cobra.Command{
		Use:   "offers",
		Short: "List available GPU offers on the marketplace",
		Long: `List unrented, verified GPU offers matching the filters, cheapest first.

Examples:
  comfycloud offers
  comfycloud offers --gpu RTX_4090 --price 1.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffers(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.gpu, "gpu", "", "GPU model to search for (defaults to config)")
	cmd.Flags().Float64Var(&flags.price, "price", 0, "Max price in $/hr (defaults to config)")

	return cmd
}

func runOffers(cmd *cobra.Command, flags *offersFlags) error {
	ctx := cmd.Context()

	if cfg.APIKey == "" {
		return fmt.Errorf("marketplace API key not set (VAST_API_KEY or api_key in %s)", configFileName)
	}
	gpu := cfg.GPU
	if flags.gpu != "" {
		gpu = flags.gpu
	}
	price := cfg.MaxPrice
	if flags.price > 0 {
		price = flags.price
	}

	client, err := vast.NewClient(vast.ClientConfig{
		APIKey: cfg.APIKey,
		Logger: componentLogger("vast"),
	})
	if err != nil {
		return err
	}

	offers, err := client.SearchOffers(ctx, vast.OfferQuery{GPUName: gpu, MaxPrice: price})
	if err != nil {
		return err
	}
	if len(offers) == 0 {
		cmd.Printf("No %s offers within $%.2f/hr\n", gpu, price)
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"OFFER", "GPU", "VRAM", "$/HR", "RELIABILITY", "DOWN MBPS", "DISK GB"}),
	)
	for _, o := range offers {
		table.Append([]string{
			fmt.Sprintf("%d", o.ID),
			fmt.Sprintf("%dx %s", o.NumGPUs, o.GPUName),
			fmt.Sprintf("%.0f GB", o.GPURAM/1024),
			fmt.Sprintf("%.3f", o.DPHTotal),
			fmt.Sprintf("%.1f%%", o.Reliability*100),
			fmt.Sprintf("%.0f", o.InetDown),
			fmt.Sprintf("%.0f", o.DiskSpace),
		})
	}
	table.Render()
	return nil
}
