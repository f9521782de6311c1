package main

import (
	"fmt"
	"os"

	"github.com/isdelr/lab-portal/internal/cli"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := cli.NewRootCmd()
	root.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
