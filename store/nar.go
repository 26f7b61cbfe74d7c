package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// narHash returns the SHA-256 of the NAR serialization of p.
func narHash(p string) ([]byte, error) {
	h := sha256.New()
	if err := dumpNAR(h, p); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// dumpNAR writes the NAR serialization of the file tree at p.
func dumpNAR(w io.Writer, p string) error {
	nw := &narWriter{w: w}
	nw.str("nix-archive-1")
	nw.node(p)
	return nw.err
}

type narWriter struct {
	w   io.Writer
	err error
	buf [8]byte
}

var narPadding [8]byte

func (n *narWriter) write(b []byte) {
	if n.err != nil {
		return
	}
	_, n.err = n.w.Write(b)
}

func (n *narWriter) length(l uint64) {
	binary.LittleEndian.PutUint64(n.buf[:], l)
	n.write(n.buf[:])
}

func (n *narWriter) pad(l uint64) {
	if r := l % 8; r != 0 {
		n.write(narPadding[:8-r])
	}
}

func (n *narWriter) str(s string) {
	n.length(uint64(len(s)))
	n.write([]byte(s))
	n.pad(uint64(len(s)))
}

func (n *narWriter) node(p string) {
	if n.err != nil {
		return
	}
	fi, err := os.Lstat(p)
	if err != nil {
		n.err = err
		return
	}

	n.str("(")
	switch mode := fi.Mode(); {
	case mode.IsRegular():
		n.str("type")
		n.str("regular")
		if mode&0o111 != 0 {
			n.str("executable")
			n.str("")
		}
		n.str("contents")
		n.contents(p, uint64(fi.Size()))
	case mode.IsDir():
		n.str("type")
		n.str("directory")
		entries, err := os.ReadDir(p)
		if err != nil {
			n.err = err
			return
		}
		for _, e := range entries {
			n.str("entry")
			n.str("(")
			n.str("name")
			n.str(e.Name())
			n.str("node")
			n.node(filepath.Join(p, e.Name()))
			n.str(")")
		}
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			n.err = err
			return
		}
		n.str("type")
		n.str("symlink")
		n.str("target")
		n.str(target)
	default:
		n.err = fmt.Errorf("file %q has an unsupported type", p)
		return
	}
	n.str(")")
}

func (n *narWriter) contents(p string, size uint64) {
	if n.err != nil {
		return
	}
	f, err := os.Open(p)
	if err != nil {
		n.err = err
		return
	}
	defer f.Close()

	n.length(size)
	if n.err != nil {
		return
	}
	copied, err := io.Copy(n.w, io.LimitReader(f, int64(size)))
	if err != nil {
		n.err = err
		return
	}
	if uint64(copied) != size {
		n.err = fmt.Errorf("file %q changed size while being read", p)
		return
	}
	n.pad(size)
}
