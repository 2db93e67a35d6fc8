// Command crpcut-selftest runs the crpcut test program through its
// invocation matrix and checks every report against the expectation catalog.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rollbear/crpcut/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCommand()
	root.Version = version

	if err := root.Execute(); err != nil {
		// ExitErrors have already been reported by the command; flag and
		// argument errors have not.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
