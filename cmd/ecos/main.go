// Package main provides the ecos command line: grading, human grade entry,
// export and purge against the configured grade store.
package main

import (
	"fmt"
	"os"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := rootCmd(openApp, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
