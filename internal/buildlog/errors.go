// Package buildlog defines the error taxonomy shared by every build stage
// and the driver's terminal logging (verbose stage banners, -debug
// formatting). Error types follow the same shape as the teacher's
// internal/repo.ErrNotFound: a struct with an Error method, unwrappable to
// the underlying cause with errors.As.
package buildlog

import "fmt"

// RecipeIOError means the recipe file could not be read.
type RecipeIOError struct {
	Path string
	Err  error
}

func (e *RecipeIOError) Error() string {
	return fmt.Sprintf("reading recipe %s: %v", e.Path, e.Err)
}

func (e *RecipeIOError) Unwrap() error { return e.Err }

// RecipeParseError means the script parser rejected the recipe's syntax.
type RecipeParseError struct {
	Path string
	Err  error
}

func (e *RecipeParseError) Error() string {
	return fmt.Sprintf("parsing recipe %s: %v", e.Path, e.Err)
}

func (e *RecipeParseError) Unwrap() error { return e.Err }

// RecipeRuntimeError means a host function or the recipe script itself
// failed during evaluation. It is tagged with the offending function name
// and its arguments, per spec.
type RecipeRuntimeError struct {
	Func string
	Args []string
	Err  error
}

func (e *RecipeRuntimeError) Error() string {
	return fmt.Sprintf("%s(%v): %v", e.Func, e.Args, e.Err)
}

func (e *RecipeRuntimeError) Unwrap() error { return e.Err }

// HashMismatch means a downloaded file's SHA-256 did not match the hash the
// recipe declared.
type HashMismatch struct {
	URL  string
	Got  string
	Want string
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("hash mismatch for %s: got %s, want %s", e.URL, e.Got, e.Want)
}

// SandboxPrepError means assembling the sandbox root failed. Stage names one
// of MkDir, CopyHelper or BindMount.
type SandboxPrepError struct {
	Stage string
	Err   error
}

func (e *SandboxPrepError) Error() string {
	return fmt.Sprintf("sandbox prep (%s): %v", e.Stage, e.Err)
}

func (e *SandboxPrepError) Unwrap() error { return e.Err }

// SubprocessError means a helper or builder subprocess exited non-zero.
type SubprocessError struct {
	Command string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("%s: %v\nstdout:\n%s\nstderr:\n%s", e.Command, e.Err, e.Stdout, e.Stderr)
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// DependencyCycle means the dependency DAG is not a DAG: Path lists the
// fingerprints on the resolution stack, in order, closing with the
// fingerprint that was seen twice.
type DependencyCycle struct {
	Path []string
}

func (e *DependencyCycle) Error() string {
	return fmt.Sprintf("dependency cycle: %v", e.Path)
}

// MissingBuildFunction means a recipe has no top-level `build` binding.
type MissingBuildFunction struct {
	Recipe string
}

func (e *MissingBuildFunction) Error() string {
	return fmt.Sprintf("%s: no build function defined", e.Recipe)
}
