package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comfycloud/lazymodels/pkg/mirror"
	"github.com/comfycloud/lazymodels/pkg/models"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [LOCAL_PATH MIRROR_PATH]",
		Short: "Sync the local model library to its cloud mirror",
		Long: `Sync copies new or size-changed model files from the local library into
the mounted cloud mirror. Mirror files with no local counterpart are
reported, never deleted.

Examples:
  comfycloud sync
  comfycloud sync ./ComfyUI/models "G:/My Drive/ComfyUI/models"`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args)
		},
	}

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	local, mirrorPath := cfg.ModelsPath, cfg.MirrorPath
	if len(args) == 2 {
		local, mirrorPath = args[0], args[1]
	} else if len(args) == 1 {
		return fmt.Errorf("sync takes either no arguments or both LOCAL_PATH and MIRROR_PATH")
	}
	if local == "" || mirrorPath == "" {
		return fmt.Errorf("models_path and mirror_path not set (configure %s or pass both paths)", configFileName)
	}

	syncer := mirror.NewSyncer(models.DefaultTable(), componentLogger("sync"))
	stats, err := syncer.Sync(local, mirrorPath)
	if err != nil {
		return err
	}
	if len(stats.Orphans) > 0 {
		cmd.Printf("%d orphan file(s) on mirror, not deleted\n", len(stats.Orphans))
	}
	return nil
}
