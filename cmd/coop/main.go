// Command coop runs the persistent chicken coop.
package main

import (
	"fmt"
	"os"

	"github.com/MRamiBalles/tofuwabohu/server/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
