// Package sandbox implements the sandbox assembler (spec component C4):
// preparing a recipe's hash directory as a chroot root, then invoking the
// external overlay helper that layers each resolved dependency's output/
// directory underneath it.
package sandbox

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/tuvix/tuvix/internal/buildlog"
	"github.com/tuvix/tuvix/internal/storeconfig"
)

// reservedDirs are created (if missing) before anything is copied or
// mounted, per spec.md §4.4's strict ordering: directories must exist
// before mounts.
var reservedDirs = []string{"bin", ".bin", "dev", "proc", "tmp", "output", "deps"}

// Assemble prepares hashDir as a chroot root: it creates the reserved
// directories, copies the shell/strace helpers, bind-mounts /dev and /proc
// idempotently, and bind-mounts each dependency's output directory under
// deps/<name> (spec.md §9's dependency paths map, resolved concretely: each
// dependency is addressable at /deps/<name> inside the sandbox in addition
// to appearing in the merged overlay root — see DESIGN.md).
func Assemble(hashDir string, deps map[string]string) error {
	for _, d := range reservedDirs {
		if err := os.MkdirAll(filepath.Join(hashDir, d), 0o755); err != nil {
			return &buildlog.SandboxPrepError{Stage: "MkDir", Err: err}
		}
	}

	if err := copyHelper(filepath.Join(storeconfig.HelpersDir(), "bash"), filepath.Join(hashDir, "bin", "sh"), 0o755); err != nil {
		return &buildlog.SandboxPrepError{Stage: "CopyHelper", Err: err}
	}
	if err := copyHelper(filepath.Join(storeconfig.HelpersDir(), "strace"), filepath.Join(hashDir, ".bin", "strace"), 0o755); err != nil {
		return &buildlog.SandboxPrepError{Stage: "CopyHelper", Err: err}
	}

	if err := bindIfMissing("/dev", filepath.Join(hashDir, "dev"), filepath.Join(hashDir, "dev", "null")); err != nil {
		return &buildlog.SandboxPrepError{Stage: "BindMount", Err: err}
	}
	if err := bindIfMissing("/proc", filepath.Join(hashDir, "proc"), filepath.Join(hashDir, "proc", "version")); err != nil {
		return &buildlog.SandboxPrepError{Stage: "BindMount", Err: err}
	}

	// Dependency overlays are layered last, so that base /dev and /proc are
	// never masked by an earlier mount (spec.md §4.4's ordering invariant).
	for name, depOutput := range deps {
		dst := filepath.Join(hashDir, "deps", name)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return &buildlog.SandboxPrepError{Stage: "MkDir", Err: err}
		}
		if err := unix.Mount(depOutput, dst, "", unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			return &buildlog.SandboxPrepError{Stage: "BindMount", Err: err}
		}
		// The kernel ignores MS_RDONLY on the initial bind; a remount applies it.
		if err := unix.Mount("", dst, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			return &buildlog.SandboxPrepError{Stage: "BindMount", Err: err}
		}
	}

	return nil
}

func bindIfMissing(src, dstDir, marker string) error {
	if _, err := os.Stat(marker); err == nil {
		return nil // already bind-mounted, idempotency check per spec.md §4.4
	}
	return unix.Mount(src, dstDir, "", unix.MS_BIND, "")
}

func copyHelper(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MountOverlay invokes the mount-all helper (spec.md §6) to union hashDir
// plus every dependency's output directory under STORE_ROOT/store/merged,
// the directory the inner builder will chroot into.
func MountOverlay(hashName string, depOutputs []string) error {
	args := append([]string{storeconfig.StoreDir(), hashName}, depOutputs...)
	return runHelper("mount-all.py", args)
}

// UnmountOverlay invokes the unmount-all helper. It must be called after the
// inner builder exits, regardless of its exit status (spec.md §5's ordering
// guarantee 3).
func UnmountOverlay() error {
	return runHelper("unmount-all.py", []string{storeconfig.StoreDir()})
}

func runHelper(name string, args []string) error {
	path := filepath.Join(storeconfig.HelpersDir(), name)
	cmd := exec.Command(path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &buildlog.SubprocessError{Command: cmd.String(), Stdout: string(out), Err: err}
	}
	return nil
}
