// Command harnessctl supervises a user-supplied unit of work as a child
// process behind a control-plane HTTP server.
package main

import (
	"fmt"
	"os"

	"harness/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
