// Command purectl is an operational CLI for exercising the plugin core
// outside the host platform: health checks against an array, driving
// alloc/free/snapshot by hand, and running the orphan temp-clone sweep.
// It is not the PVE plugin dispatcher and does not read storage.cfg.
package main

import (
	"fmt"
	"os"

	"purearray-pve-plugin/cmd/purectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
