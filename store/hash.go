package store

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const base32Chars = "0123456789abcdfghijklmnpqrsvwxyz"

// base32 encodes b in the store's base-32 alphabet, least significant
// bits last.
func base32(b []byte) string {
	n := (len(b)*8-1)/5 + 1
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		bit := i * 5
		j, k := bit/8, uint(bit%8)
		c := b[j] >> k
		if j+1 < len(b) {
			c |= b[j+1] << (8 - k)
		}
		out[n-1-i] = base32Chars[c&0x1f]
	}
	return string(out)
}

// compressHash folds h into size bytes by XOR.
func compressHash(h []byte, size int) []byte {
	out := make([]byte, size)
	for i, c := range h {
		out[i%size] ^= c
	}
	return out
}

// makePath computes the store path of a tree with the given NAR hash.
func makePath(dir, name string, narHash []byte) Path {
	fingerprint := fmt.Sprintf("source:sha256:%x:%s:%s", narHash, dir, name)
	sum := sha256.Sum256([]byte(fingerprint))
	return Path{Hash: base32(compressHash(sum[:], 20)), Name: name}
}

// ParseHash decodes a SHA-256 hash written as "sha256-<base64>" (SRI) or
// "sha256:<hex>".
func ParseHash(s string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch {
	case strings.HasPrefix(s, "sha256-"):
		b, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "sha256-"))
	case strings.HasPrefix(s, "sha256:"):
		b, err = hex.DecodeString(strings.TrimPrefix(s, "sha256:"))
	default:
		return nil, fmt.Errorf("unsupported hash %q: expected sha256-<base64> or sha256:<hex>", s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("invalid hash %q: got %d bytes, want %d", s, len(b), sha256.Size)
	}
	return b, nil
}

// FormatSRI renders a SHA-256 digest in SRI form.
func FormatSRI(h []byte) string {
	return "sha256-" + base64.StdEncoding.EncodeToString(h)
}

func hashFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// HashMismatchError reports content that does not match its pinned hash.
type HashMismatchError struct {
	What      string
	Specified []byte
	Got       []byte
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch in %s: specified %s, got %s", e.What, FormatSRI(e.Specified), FormatSRI(e.Got))
}
