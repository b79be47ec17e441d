// comfycloud is the operator-side CLI: it analyzes workflows, rents a GPU
// instance on the marketplace, syncs the local model library to its cloud
// mirror, and runs workflows against the remote serving process.
package main

import (
	"os"

	"github.com/comfycloud/lazymodels/cmd/comfycloud/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
