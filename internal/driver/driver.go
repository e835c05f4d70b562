// Package driver implements the outer process (spec component C6): it
// orchestrates dependency builds, mount preparation, spawns the inner
// builder with elevated privileges, and writes the completion marker.
// chroot is irreversible within a process (spec.md §9's "Sandbox
// re-entrancy" note), so the driver itself never chroots — only the
// subprocess in cmd/build_in_chroot does.
package driver

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/tuvix/tuvix"
	"github.com/tuvix/tuvix/internal/buildlog"
	"github.com/tuvix/tuvix/internal/evalctx"
	"github.com/tuvix/tuvix/internal/fingerprint"
	"github.com/tuvix/tuvix/internal/hostfuncs"
	"github.com/tuvix/tuvix/internal/oninterrupt"
	"github.com/tuvix/tuvix/internal/recipe"
	"github.com/tuvix/tuvix/internal/resolve"
	"github.com/tuvix/tuvix/internal/sandbox"

	"go.starlark.net/starlark"
)

// depsSidecar is the name of the JSON file the driver writes into the hash
// directory to communicate the resolved dependency paths map to the inner
// builder process (spec.md §9's build-context paths map: resolved from the
// dependency set, carried across the process boundary rather than
// recomputed by the privileged builder).
const depsSidecar = ".deps.json"

// AllowlistEnv are the only environment variables preserved when spawning
// the inner builder; everything else is cleared so builds are reproducible
// (spec.md §5's process model).
var AllowlistEnv = []string{"PATH", "HOME", "TERM", "TUVIX_STORE", "TUVIX_CA_BUNDLE"}

// Options controls one invocation of BuildRecipe.
type Options struct {
	Debug   bool
	Verbose bool

	// Sudo is the privilege-escalation command used to spawn the inner
	// builder (normally "sudo"); overridable for tests.
	Sudo string

	// BuilderPath is the path to the build_in_chroot binary.
	BuilderPath string
}

func (o Options) sudo() string {
	if o.Sudo != "" {
		return o.Sudo
	}
	return "sudo"
}

func (o Options) builderPath() string {
	if o.BuilderPath != "" {
		return o.BuilderPath
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "build_in_chroot")
	}
	return "build_in_chroot"
}

// BuildRecipe builds path and its transitive dependencies, returning the
// recipe's fingerprint. It implements spec.md §4.6's eight-step driver
// algorithm.
func BuildRecipe(path string, stack *resolve.Stack, opts Options) (string, error) {
	r, err := recipe.Load(path, hostfuncs.IsPredeclared)
	if err != nil {
		return "", err
	}

	if err := stack.Push(r.Fingerprint); err != nil {
		return "", err
	}
	defer stack.Pop()

	hashDir := fingerprint.StorePath(r.Fingerprint)

	if fingerprint.IsComplete(hashDir) {
		buildlog.Stage(opts.Verbose, "%s already built (%s)", path, r.Fingerprint)
		return r.Fingerprint, nil // memoized via the .complete sentinel
	}

	if err := os.MkdirAll(hashDir, 0o755); err != nil {
		return "", xerrors.Errorf("creating hash directory: %w", err)
	}

	deps, err := evalTopLevel(r, hashDir, opts)
	if err != nil {
		return "", xerrors.Errorf("evaluating top level of %s: %w", path, err)
	}

	depOutputs, sandboxPaths, err := resolveDeps(path, deps, stack, opts)
	if err != nil {
		return "", xerrors.Errorf("resolving dependencies of %s: %w", path, err)
	}

	buildlog.Stage(opts.Verbose, "assembling sandbox for %s", path)
	if err := sandbox.Assemble(hashDir, depOutputs); err != nil {
		return "", xerrors.Errorf("assembling sandbox: %w", err)
	}

	if err := writeDepsSidecar(hashDir, sandboxPaths); err != nil {
		return "", xerrors.Errorf("writing deps sidecar: %w", err)
	}

	depOutputList := make([]string, 0, len(depOutputs))
	for _, out := range depOutputs {
		depOutputList = append(depOutputList, out)
	}

	if err := sandbox.MountOverlay(r.Fingerprint, depOutputList); err != nil {
		return "", xerrors.Errorf("mounting overlay: %w", err)
	}
	oninterrupt.Register(func() { sandbox.UnmountOverlay() })

	buildlog.Stage(opts.Verbose, "running inner builder for %s", path)
	buildErr := runBuilder(path, opts)

	unmountErr := sandbox.UnmountOverlay()

	if buildErr != nil {
		// Unmount always runs, but a prior builder failure is the one that
		// matters to the caller (spec.md §5's ordering guarantee 3 and
		// §4.6 step 7: unmount failure only surfaces when the builder
		// itself succeeded).
		if unmountErr != nil {
			buildlog.Stage(true, "unmount also failed after build failure: %v", unmountErr)
		}
		return "", buildErr
	}
	if unmountErr != nil {
		return "", xerrors.Errorf("unmounting overlay: %w", unmountErr)
	}

	if err := fingerprint.MarkComplete(hashDir); err != nil {
		return "", xerrors.Errorf("marking %s complete: %w", hashDir, err)
	}
	buildlog.Stage(opts.Verbose, "built %s -> %s", path, r.Fingerprint)

	return r.Fingerprint, nil
}

// evalTopLevel evaluates the recipe's top level in an unconfined evaluator
// (spec.md §4.6 step 3): no chroot, CWD set to the hash directory so
// download/unpack side effects land in-store. It returns the `dependencies`
// global, or nil if absent.
func evalTopLevel(r *recipe.Recipe, hashDir string, opts Options) ([]string, error) {
	prevWD, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(hashDir); err != nil {
		return nil, err
	}
	defer os.Chdir(prevWD)

	ctx := evalctx.New(hashDir, hashDir, nil, opts.Verbose)
	tuvix.RegisterAtExit(func() error {
		ctx.HTTPClient.CloseIdleConnections()
		return nil
	})
	thread := &starlark.Thread{Name: r.Path}
	globals, err := r.Program().Init(thread, hostfuncs.Predeclared(ctx))
	if err != nil {
		return nil, &buildlog.RecipeRuntimeError{Func: "<toplevel>", Args: []string{r.Path}, Err: err}
	}

	depsVal, ok := globals["dependencies"]
	if !ok {
		return nil, nil
	}
	seq, ok := depsVal.(starlark.Indexable)
	if !ok {
		return nil, &buildlog.RecipeRuntimeError{Func: "<toplevel>", Args: []string{r.Path}, Err: errNotSequence("dependencies")}
	}
	deps := make([]string, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		s, ok := starlark.AsString(seq.Index(i))
		if !ok {
			return nil, &buildlog.RecipeRuntimeError{Func: "<toplevel>", Args: []string{r.Path}, Err: errNotSequence("dependencies")}
		}
		deps = append(deps, s)
	}
	return deps, nil
}

type errNotSequence string

func (e errNotSequence) Error() string { return string(e) + " must be a sequence of strings" }

// resolveDeps builds each dependency, strictly depth-first and left-to-right
// (spec.md §4.5), returning the host-side output directories keyed by
// dependency name and the in-sandbox paths the build context will expose.
func resolveDeps(recipePath string, deps []string, stack *resolve.Stack, opts Options) (hostOutputs, sandboxPaths map[string]string, err error) {
	hostOutputs = make(map[string]string, len(deps))
	sandboxPaths = make(map[string]string, len(deps))
	dir := filepath.Dir(recipePath)
	for _, name := range deps {
		depPath := filepath.Join(dir, name+".star")
		fp, err := BuildRecipe(depPath, stack, opts)
		if err != nil {
			return nil, nil, err
		}
		hostOutputs[name] = filepath.Join(fingerprint.StorePath(fp), "output")
		sandboxPaths[name] = "/deps/" + name
	}
	return hostOutputs, sandboxPaths, nil
}

func writeDepsSidecar(hashDir string, sandboxPaths map[string]string) error {
	data, err := json.Marshal(sandboxPaths)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(hashDir, depsSidecar), data, 0o644)
}

// runBuilder spawns the inner builder with a cleared environment
// (allowlisted variables only) and elevated privileges, streaming its
// stdout/stderr while waiting for it to exit — the same
// stream-while-waiting shape as the teacher's cmd/distri/builder.go.
func runBuilder(recipePath string, opts Options) error {
	args := []string{opts.builderPath()}
	if opts.Verbose {
		args = append(args, "-verbose")
	}
	args = append(args, recipePath)
	cmd := exec.Command(opts.sudo(), args...)
	cmd.Env = allowlistedEnv()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return &buildlog.SubprocessError{Command: cmd.String(), Err: err}
	}

	var eg errgroup.Group
	eg.Go(func() error { return streamLines(stdout, os.Stdout) })
	eg.Go(func() error { return streamLines(stderr, os.Stderr) })

	// Drain both pipes before Wait: Wait closes them once the process exits,
	// which would cut off any output the readers have not consumed yet.
	streamErr := eg.Wait()
	waitErr := cmd.Wait()
	if waitErr == nil {
		waitErr = streamErr
	}
	if waitErr != nil {
		return &buildlog.SubprocessError{Command: cmd.String(), Err: waitErr}
	}
	return nil
}

func streamLines(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		io.WriteString(w, scanner.Text()+"\n")
	}
	return scanner.Err()
}

func allowlistedEnv() []string {
	env := make([]string, 0, len(AllowlistEnv))
	for _, name := range AllowlistEnv {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}
