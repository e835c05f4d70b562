package hostfuncs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tuvix/tuvix/internal/evalctx"

	"go.starlark.net/starlark"
)

func evalScript(t *testing.T, ctx *evalctx.Context, src string) starlark.StringDict {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	globals, err := starlark.ExecFile(thread, "test.star", src, Predeclared(ctx))
	if err != nil {
		t.Fatalf("exec %q: %v", src, err)
	}
	return globals
}

func newCtx(t *testing.T) *evalctx.Context {
	t.Helper()
	dir := t.TempDir()
	return evalctx.New(dir, dir, nil, false)
}

func TestDownloadVerifiesHashAndCaches(t *testing.T) {
	body := []byte("hello hermetic world")
	sum := sha256.Sum256(body)
	want := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	ctx := newCtx(t)
	prevWD, _ := os.Getwd()
	defer os.Chdir(prevWD)
	os.Chdir(ctx.HashDir)

	globals := evalScript(t, ctx, fmt.Sprintf("result = download(%q, %q)", srv.URL+"/pkg.tar", want))
	fname, ok := starlark.AsString(globals["result"])
	if !ok {
		t.Fatalf("result is not a string: %v", globals["result"])
	}
	if fname != "pkg.tar" {
		t.Fatalf("fname = %q, want pkg.tar", fname)
	}
	if _, err := os.Stat(filepath.Join(ctx.HashDir, "pkg.tar")); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}

	// Second call should be served from the local cache without hitting the
	// server again (same hash match), so close the server and confirm it
	// still succeeds.
	srv.Close()
	evalScript(t, ctx, fmt.Sprintf("result2 = download(%q, %q)", srv.URL+"/pkg.tar", want))
}

func TestDownloadHashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not what you expected"))
	}))
	defer srv.Close()

	ctx := newCtx(t)
	prevWD, _ := os.Getwd()
	defer os.Chdir(prevWD)
	os.Chdir(ctx.HashDir)

	thread := &starlark.Thread{Name: "test"}
	_, err := starlark.ExecFile(thread, "test.star",
		fmt.Sprintf("download(%q, %q)", srv.URL+"/pkg.tar", "deadbeef"), Predeclared(ctx))
	if err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestMkdirNonRecursive(t *testing.T) {
	ctx := newCtx(t)
	target := filepath.Join(ctx.HashDir, "sub")

	thread := &starlark.Thread{Name: "test"}
	if _, err := starlark.ExecFile(thread, "a.star", fmt.Sprintf("mkdir(%q)", target), Predeclared(ctx)); err != nil {
		t.Fatalf("first mkdir: %v", err)
	}
	if _, err := starlark.ExecFile(thread, "b.star", fmt.Sprintf("mkdir(%q)", target), Predeclared(ctx)); err == nil {
		t.Fatalf("expected second mkdir on existing dir to fail")
	}

	missingParent := filepath.Join(ctx.HashDir, "nope", "deeper")
	if _, err := starlark.ExecFile(thread, "c.star", fmt.Sprintf("mkdir(%q)", missingParent), Predeclared(ctx)); err == nil {
		t.Fatalf("expected mkdir with missing parent to fail (non-recursive)")
	}
}

func TestJoinpathTrimsSeparatorsOnly(t *testing.T) {
	ctx := newCtx(t)
	globals := evalScript(t, ctx, `result = joinpath("/foo/bar/", "/baz")`)
	got, _ := starlark.AsString(globals["result"])
	if got != "/foo/bar/baz" {
		t.Fatalf("joinpath = %q, want /foo/bar/baz", got)
	}

	// joinpath does not collapse "..", unlike filepath.Join/Clean.
	globals = evalScript(t, ctx, `result = joinpath("/foo", "../etc")`)
	got, _ = starlark.AsString(globals["result"])
	if got != "/foo/../etc" {
		t.Fatalf("joinpath = %q, want /foo/../etc (no normalization)", got)
	}
}

func TestRunEmptyCommandErrors(t *testing.T) {
	ctx := newCtx(t)
	thread := &starlark.Thread{Name: "test"}
	// A leading space means bits[0] == "", which runCommand rejects as an
	// empty command rather than silently no-op'ing.
	_, err := starlark.ExecFile(thread, "test.star", `run(" true")`, Predeclared(ctx))
	if err == nil {
		t.Fatalf("expected empty-command error for leading-space command line")
	}
}

func TestRunSucceeds(t *testing.T) {
	ctx := newCtx(t)
	thread := &starlark.Thread{Name: "test"}
	if _, err := starlark.ExecFile(thread, "test.star", `result = run("/bin/true")`, Predeclared(ctx)); err != nil {
		t.Fatalf("run /bin/true: %v", err)
	}
}

func TestExecVariadicSucceeds(t *testing.T) {
	ctx := newCtx(t)
	thread := &starlark.Thread{Name: "test"}
	if _, err := starlark.ExecFile(thread, "test.star", `result = exec(["/bin/echo", "hi"])`, Predeclared(ctx)); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func TestSymlinkLinkMoveMakeExecutable(t *testing.T) {
	ctx := newCtx(t)
	src := filepath.Join(ctx.HashDir, "src.txt")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatalf("seed src: %v", err)
	}

	symDst := filepath.Join(ctx.HashDir, "sym.txt")
	hardDst := filepath.Join(ctx.HashDir, "hard.txt")
	movedDst := filepath.Join(ctx.HashDir, "moved.txt")

	thread := &starlark.Thread{Name: "test"}
	script := fmt.Sprintf("symlink(%q, %q)\n", src, symDst) +
		fmt.Sprintf("link(%q, %q)\n", src, hardDst) +
		fmt.Sprintf("make_executable(%q)\n", hardDst) +
		fmt.Sprintf("move(%q, %q)\n", hardDst, movedDst)
	if _, err := starlark.ExecFile(thread, "test.star", script, Predeclared(ctx)); err != nil {
		t.Fatalf("exec: %v", err)
	}

	if target, err := os.Readlink(symDst); err != nil || target != src {
		t.Fatalf("symlink target = %q, err %v, want %q", target, err, src)
	}
	info, err := os.Stat(movedDst)
	if err != nil {
		t.Fatalf("stat moved hardlink: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("moved file not executable: %v", info.Mode())
	}
	if _, err := os.Stat(hardDst); !os.IsNotExist(err) {
		t.Fatalf("hardDst should no longer exist after move, err=%v", err)
	}
}

func TestCwdChdirGetOutput(t *testing.T) {
	ctx := newCtx(t)
	ctx.Output = "/output"
	thread := &starlark.Thread{Name: "test"}
	script := fmt.Sprintf("chdir(%q)\nresult = cwd()\nout = get_output()\n", ctx.HashDir)
	globals, err := starlark.ExecFile(thread, "test.star", script, Predeclared(ctx))
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	got, _ := starlark.AsString(globals["result"])
	if got != ctx.HashDir {
		t.Fatalf("cwd() = %q, want %q", got, ctx.HashDir)
	}
	out, _ := starlark.AsString(globals["out"])
	if out != "/output" {
		t.Fatalf("get_output() = %q, want /output", out)
	}
}

func TestIsPredeclared(t *testing.T) {
	for _, name := range names {
		if !IsPredeclared(name) {
			t.Fatalf("IsPredeclared(%q) = false, want true", name)
		}
	}
	if IsPredeclared("not_a_real_function") {
		t.Fatalf("IsPredeclared reported an unknown name as predeclared")
	}
}
