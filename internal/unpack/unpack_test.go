package unpack

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

func writeTarXZ(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	tw := tar.NewWriter(zw)

	for name, body := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("xz Close: %v", err)
	}
}

func TestTarXZExtractsRegularFiles(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "pkg-1.0.tar.xz")
	writeTarXZ(t, archive, map[string]string{
		"bin/hello":  "#!/bin/sh\necho hi\n",
		"share/README": "hello world\n",
	})

	dir, err := TarXZ(archive, root)
	if err != nil {
		t.Fatalf("TarXZ: %v", err)
	}
	if filepath.Base(dir) != "pkg-1.0" {
		t.Fatalf("extracted dir = %q, want basename pkg-1.0", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, "share/README"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != "hello world\n" {
		t.Fatalf("extracted contents = %q", data)
	}
}

func TestStemTrimsKnownSuffixes(t *testing.T) {
	cases := map[string]string{
		"foo-1.0.tar.xz": "foo-1.0",
		"foo-1.0.txz":    "foo-1.0",
		"foo-1.0.tar":    "foo-1.0",
		"foo-1.0.xz":     "foo-1.0",
		"foo-1.0":        "foo-1.0",
	}
	for in, want := range cases {
		if got := stem(in); got != want {
			t.Errorf("stem(%q) = %q, want %q", in, got, want)
		}
	}
}
