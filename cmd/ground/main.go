// Command ground records and inspects versioned metadata.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ground/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
