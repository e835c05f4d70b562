// Package builder implements the inner process (spec component C7): it
// enters the prepared chroot and runs the recipe's build function. It never
// writes the .complete sentinel — that remains the driver's prerogative
// (spec.md §4.7).
package builder

import (
	"encoding/json"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tuvix/tuvix"
	"github.com/tuvix/tuvix/internal/buildlog"
	"github.com/tuvix/tuvix/internal/evalctx"
	"github.com/tuvix/tuvix/internal/hostfuncs"
	"github.com/tuvix/tuvix/internal/recipe"
	"github.com/tuvix/tuvix/internal/storeconfig"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const depsSidecar = "/.deps.json"

// Run is cmd/build_in_chroot's entire job: re-load the recipe, chroot into
// the merged overlay root, and call its build(ctx) function.
func Run(recipePath string, verbose bool) error {
	r, err := recipe.Load(recipePath, hostfuncs.IsPredeclared)
	if err != nil {
		return err
	}

	mergedRoot := storeconfig.MergedDir()
	if err := unix.Chroot(mergedRoot); err != nil {
		return &buildlog.SandboxPrepError{Stage: "BindMount", Err: err}
	}
	if err := os.Chdir("/"); err != nil {
		return err
	}

	if err := os.MkdirAll("/output", 0o755); err != nil {
		return err
	}

	deps, err := readDepsSidecar()
	if err != nil {
		return err
	}

	ctx := evalctx.New("/", "/", deps, verbose)
	tuvix.RegisterAtExit(func() error {
		ctx.HTTPClient.CloseIdleConnections()
		return nil
	})
	thread := &starlark.Thread{Name: r.Path}
	globals, err := r.Program().Init(thread, hostfuncs.Predeclared(ctx))
	if err != nil {
		return &buildlog.RecipeRuntimeError{Func: "<toplevel>", Args: []string{r.Path}, Err: err}
	}

	buildFn, ok := globals["build"]
	if !ok {
		return &buildlog.MissingBuildFunction{Recipe: r.Path}
	}

	buildCtx := buildContext(deps)
	if _, err := starlark.Call(thread, buildFn, starlark.Tuple{buildCtx}, nil); err != nil {
		return &buildlog.RecipeRuntimeError{Func: "build", Args: []string{r.Path}, Err: err}
	}

	return nil
}

// buildContext constructs the record passed as build's sole argument,
// carrying the dependency-name-to-sandbox-path mapping spec.md §9 flags as
// a stub in the original source; here it is built from the resolved
// dependency set rather than hardcoded.
func buildContext(deps map[string]string) *starlarkstruct.Struct {
	paths := starlark.NewDict(len(deps))
	for name, path := range deps {
		paths.SetKey(starlark.String(name), starlark.String(path))
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"paths": paths,
	})
}

func readDepsSidecar() (map[string]string, error) {
	data, err := os.ReadFile(depsSidecar)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var deps map[string]string
	if err := json.Unmarshal(data, &deps); err != nil {
		return nil, err
	}
	return deps, nil
}
