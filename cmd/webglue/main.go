// Command webglue drives an embedded browser engine from its owner
// goroutine.
package main

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-webglue/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, `webglue:`, err)
		os.Exit(cli.GetExitCode(err))
	}
}
