package main

import (
	"fmt"
	"os"

	"github.com/rshade/cohort/internal/cli"
	"github.com/rshade/cohort/pkg/version"
)

func run() error {
	return cli.Execute(version.GetVersion())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
