// Package unpack implements the extraction half of spec.md §4.3's unpack
// host function: treating a file as an xz-compressed tar archive and
// extracting it into a freshly named directory. The extract-to-a-tempdir-
// then-rename shape follows the teacher's own internal/build.Ctx.Extract.
package unpack

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// stem trims the archive suffixes this package knows how to decompress,
// mirroring the teacher's TrimArchiveSuffix.
func stem(fn string) string {
	base := filepath.Base(fn)
	for _, suffix := range []string{".tar.xz", ".txz", ".tar", ".xz"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// TarXZ extracts the xz-compressed tar archive at fname into a directory
// named after its stem, created under root (the recipe's hash directory
// before chroot, "/" once inside the sandbox — spec.md §4.3). It returns the
// directory's path.
func TarXZ(fname, root string) (string, error) {
	dir := filepath.Join(root, stem(fname))

	f, err := os.Open(fname)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := xz.NewReader(f)
	if err != nil {
		return "", err
	}

	tmp, err := os.MkdirTemp(root, ".unpack-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		target := filepath.Join(tmp, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return "", err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return "", err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return "", err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return "", err
			}
			if err := out.Close(); err != nil {
				return "", err
			}
		}
	}

	if err := os.Rename(tmp, dir); err != nil {
		return "", err
	}
	return dir, nil
}
