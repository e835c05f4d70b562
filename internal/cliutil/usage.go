// Package cliutil holds small helpers shared between tuvix's two CLI
// entrypoints, following cmd/distri/usage.go's shape.
package cliutil

import (
	"flag"
	"fmt"
	"os"
)

// Usage returns a flag.FlagSet usage function that prints helpText followed
// by the flag set's defaults.
func Usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}
