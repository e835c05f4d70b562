package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOfIsStableAndSensitive(t *testing.T) {
	a := Of([]byte("build = lambda ctx: \"ok\""))
	b := Of([]byte("build = lambda ctx: \"ok\""))
	if a != b {
		t.Fatalf("fingerprint not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64", len(a))
	}

	c := Of([]byte("build = lambda ctx: \"ok!\""))
	if a == c {
		t.Fatalf("fingerprint did not change for edited source")
	}
}

func TestMarkAndIsComplete(t *testing.T) {
	dir := t.TempDir()
	if IsComplete(dir) {
		t.Fatalf("fresh directory reported complete")
	}
	if err := MarkComplete(dir); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if !IsComplete(dir) {
		t.Fatalf("directory not reported complete after MarkComplete")
	}

	info, err := os.Stat(filepath.Join(dir, sentinelName))
	if err != nil {
		t.Fatalf("stat sentinel: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("sentinel size = %d, want 0", info.Size())
	}
}
