// Main package for the tenable-csv-to-jira command line tool.
package main

import (
	"log/slog"
	"os"

	"github.com/Mainfreight/integration-jira-cloud/cmd/tenable-csv-to-jira/commands"
	"github.com/Mainfreight/integration-jira-cloud/internal/cli"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
)

func main() {
	cli.SetLogLoggerLevel(constants.DefaultLogLevel)

	a, err := commands.New()
	if err != nil {
		os.Exit(1)
	}

	os.Exit(run(a))
}

type app interface {
	Run() error
	UsageError() bool
}

func run(a app) int {
	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}
