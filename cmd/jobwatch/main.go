// jobwatch launches jobs and follows their status until they finish.
package main

import (
	"fmt"
	"jobtracker/internal/cli"
	"log/slog"
	"os"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Progress goes to stdout, logs to stderr.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	app := cli.New()
	app.SetVersion(version, commit, date)
	app.SetLogLevel(level)

	if err := app.Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
