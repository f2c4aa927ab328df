// Command sapic-core is a thin CLI harness over the storage-core services.
package main

import (
	"fmt"
	"os"

	"github.com/sapic-foundation/sapic-core/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
