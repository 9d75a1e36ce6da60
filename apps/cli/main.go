package main

import "github.com/abdul-hamid-achik/riskproxy/apps/cli/cmd"

// Set by -ldflags at build time.
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
