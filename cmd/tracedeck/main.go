package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tracedeck/tracedeck/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "tracedeck",
		Usage:   "Record, verify, and serve browser-test trace archives",
		Version: version,
		Commands: []*cliframework.Command{
			cli.RecordCommand(),
			cli.ServeCommand(),
			cli.VerifyCommand(),
			cli.InspectCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
