package main

import (
	"os"

	"github.com/docshelf/backend/internal/cli"
	"github.com/docshelf/backend/internal/logging"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	err := cli.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
