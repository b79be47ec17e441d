// stubd is the cloud-side lazy model loading agent. It runs inside the
// rented GPU container: it scans the operator's content store, materializes
// stub files so the serving process sees a complete model library at boot,
// and downloads real model content on demand as jobs are queued.
package main

import (
	"os"

	"github.com/comfycloud/lazymodels/cmd/stubd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
