package main

import (
	"os"

	"github.com/berrythewa/bandman/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "none"
)

func main() {
	// Set version information
	cli.SetVersionInfo(version, buildTime, commit)

	os.Exit(cli.ExecuteServer())
}
