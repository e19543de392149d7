// routedesk runs routing jobs against the local routing engine, either as an
// HTTP service or as a one-shot command.
//
// Usage:
//
//	routedesk serve [--config=<file>]
//	routedesk run --variant=<1..6> --src-lat=<lat> --src-lon=<lon> --dst-lat=<lat> --dst-lon=<lon>
//	routedesk variants
package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
