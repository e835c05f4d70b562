package buildlog

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// color reports whether stage banners should be colorized: only when stderr
// is a terminal, the same check the teacher uses before emitting ANSI in its
// build log output.
var color = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

// Stage prints a banner for a build pipeline stage (e.g. "resolving
// dependencies", "assembling sandbox") when verbose is enabled.
func Stage(verbose bool, format string, args ...interface{}) {
	if !verbose {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if color {
		fmt.Fprintf(os.Stderr, "\x1b[36m==>\x1b[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "==> %s\n", msg)
	}
}

// Format renders err using %+v (full xerrors frame trace) when debug is set,
// and %v otherwise, the same toggle cmd/distri/distri.go's funcmain applies.
func Format(debug bool, err error) string {
	if debug {
		return fmt.Sprintf("%+v", err)
	}
	return fmt.Sprintf("%v", err)
}
