// Command tuvix is the driver entry point (spec.md §6): it builds a recipe
// and its transitive dependencies into the content-addressed store.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tuvix/tuvix"
	"github.com/tuvix/tuvix/internal/buildlog"
	"github.com/tuvix/tuvix/internal/cliutil"
	"github.com/tuvix/tuvix/internal/driver"
	"github.com/tuvix/tuvix/internal/resolve"
)

const help = `tuvix [-flags] <recipe_path>

Build a recipe and its transitive dependencies into the content-addressed
store rooted at $TUVIX_STORE (default: $HOME/.tuvix).

Example:
  % tuvix pkgs/zsh.star
`

func funcmain() error {
	fset := flag.NewFlagSet("tuvix", flag.ExitOnError)
	var (
		debug   = fset.Bool("debug", false, "format error messages with additional detail")
		verbose = fset.Bool("verbose", false, "log each build stage and HTTP connection event")
	)
	fset.Usage = cliutil.Usage(fset, help)
	fset.Parse(os.Args[1:])

	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}

	opts := driver.Options{Debug: *debug, Verbose: *verbose}
	fp, err := driver.BuildRecipe(fset.Arg(0), resolve.NewStack(), opts)
	if err != nil {
		return fmt.Errorf("%s", buildlog.Format(*debug, err))
	}

	fmt.Printf("built %s\n", fp)
	return tuvix.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
