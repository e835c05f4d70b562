// Command build_in_chroot is the inner process (spec.md §4.7, §6): invoked
// by the driver with elevated privileges, it enters the prepared chroot and
// runs the recipe's build function. It is not for direct human use.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tuvix/tuvix"
	"github.com/tuvix/tuvix/internal/builder"
	"github.com/tuvix/tuvix/internal/cliutil"
)

const help = `build_in_chroot <recipe_path>

Internal: run by tuvix's driver inside the prepared sandbox root. Not for
direct human use.
`

func funcmain() error {
	fset := flag.NewFlagSet("build_in_chroot", flag.ExitOnError)
	verbose := fset.Bool("verbose", os.Getenv("TUVIX_VERBOSE") == "1", "log HTTP connection events")
	fset.Usage = cliutil.Usage(fset, help)
	fset.Parse(os.Args[1:])

	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}

	if err := builder.Run(fset.Arg(0), *verbose); err != nil {
		return err
	}
	return tuvix.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
