// Package main is the windest CLI command itself.
package main

import (
	"os"

	"go.viam.com/windestimator/cli"
	"go.viam.com/windestimator/logging"
)

func main() {
	logger := logging.NewBlankLogger("windest")
	logger.AddAppender(logging.NewStderrAppender())
	logging.ReplaceGlobal(logger)

	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}
