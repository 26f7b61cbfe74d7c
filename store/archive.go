package store

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// unpackTar extracts a tar stream into dst, dropping the first strip path
// components of every entry. Entries that would land outside dst, directly
// or through a symlink unpacked earlier, are rejected. maxSize bounds the
// total size of regular files.
func unpackTar(r io.Reader, dst string, strip int, maxSize int64) error {
	tr := tar.NewReader(r)
	links := make(map[string]bool)
	var total int64

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		name := stripComponents(hdr.Name, strip)
		if name == "" {
			continue
		}
		clean := path.Clean(name)
		if clean == "." {
			continue
		}
		if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
			return fmt.Errorf("archive entry %q escapes the destination", hdr.Name)
		}
		for dir := clean; dir != "."; dir = path.Dir(dir) {
			if links[dir] {
				return fmt.Errorf("archive entry %q is beneath a symlink", hdr.Name)
			}
		}

		target := filepath.Join(dst, filepath.FromSlash(clean))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			total += hdr.Size
			if total > maxSize {
				return fmt.Errorf("archive exceeds max size of %d bytes", maxSize)
			}
			if err := writeEntry(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
			links[clean] = true
		default:
			// Global pax headers, hard links and devices are skipped.
		}
	}
}

func writeEntry(tr *tar.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	perm := os.FileMode(0o644)
	if hdr.Mode&0o111 != 0 {
		perm = 0o755
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, tr, hdr.Size); err != nil {
		f.Close()
		return fmt.Errorf("extract %s: %w", hdr.Name, err)
	}
	return f.Close()
}

func stripComponents(name string, n int) string {
	name = strings.TrimPrefix(name, "./")
	for i := 0; i < n; i++ {
		_, rest, ok := strings.Cut(name, "/")
		if !ok {
			return ""
		}
		name = rest
	}
	return name
}
