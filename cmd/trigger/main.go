// Package main is the entry point for the reminder trigger, the external
// timer that asks the dispatcher to run.
package main

import (
	"os"

	"github.com/jwalitptl/quiet-hours/cmd/trigger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
