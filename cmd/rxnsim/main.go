// Command rxnsim compiles and simulates biochemical network models.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rxnsim/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
