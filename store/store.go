// Package store provides the content-addressed store guests fetch into.
//
// # Overview
//
// Every object lives at <dir>/<hash>-<name>. The hash is derived from the
// NAR serialization of the object's contents, so identical contents always
// land at the same path and inserting twice is a no-op.
//
// [Local] implements [Store] on the local filesystem. Objects reach it by
// four routes, each gated by an allowlist:
//
//   - [Local.FetchURL] downloads a single file over HTTP(S)
//   - [Local.FetchGit] exports a git revision with the git command
//   - [Local.FetchGitHub] unpacks a GitHub source tarball
//   - [Local.AddToStore] copies a local file or directory
//
// Network hosts must match one of [Config.AllowedHosts] and local paths one
// of [Config.AllowedPaths]. Both lists take doublestar patterns and both are
// empty, denying everything, by default.
//
// # Basic Usage
//
//	st, err := store.NewLocal(store.Config{
//	    Dir:          "/var/cache/nixwasm/store",
//	    AllowedHosts: []string{"github.com", "*.githubusercontent.com"},
//	})
//	p, err := st.FetchURL(ctx, "https://example.com/a.tar.gz", "sha256-...")
//	fmt.Println(st.PrintStorePath(p))
package store

import (
	"context"
	"fmt"
	"strings"
)

// Store is the set of store operations the host functions need.
type Store interface {
	FetchURL(ctx context.Context, url, hash string) (Path, error)
	FetchGit(ctx context.Context, in GitInput) (Path, error)
	FetchGitHub(ctx context.Context, in GitHubInput) (Path, error)
	AddToStore(ctx context.Context, path string) (Path, error)
	PrintStorePath(p Path) string
	// Dir returns the absolute store directory.
	Dir() string
}

// GitInput selects a git revision.
type GitInput struct {
	URL string
	// Rev is a commit, branch or tag. Empty means the remote HEAD.
	Rev string
	// NarHash, when set, must match the NAR hash of the exported tree.
	NarHash string
}

// GitHubInput selects a GitHub repository revision.
type GitHubInput struct {
	Owner   string
	Repo    string
	Rev     string
	NarHash string
}

// Path names a store object.
type Path struct {
	Hash string
	Name string
}

func (p Path) String() string { return p.Hash + "-" + p.Name }

// IsZero reports whether p is the zero Path.
func (p Path) IsZero() bool { return p.Hash == "" && p.Name == "" }

const (
	hashLen     = 32
	maxNameLen  = 211
	nameSymbols = "+-._?="
)

// ParsePath parses the base name of a store path.
func ParsePath(base string) (Path, error) {
	if len(base) < hashLen+2 || base[hashLen] != '-' {
		return Path{}, fmt.Errorf("invalid store path name %q", base)
	}
	hash, name := base[:hashLen], base[hashLen+1:]
	for i := 0; i < len(hash); i++ {
		if !strings.ContainsRune(base32Chars, rune(hash[i])) {
			return Path{}, fmt.Errorf("invalid store path hash %q", hash)
		}
	}
	if err := checkName(name); err != nil {
		return Path{}, err
	}
	return Path{Hash: hash, Name: name}, nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("store path name is empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("store path name %q is longer than %d characters", name, maxNameLen)
	}
	if name[0] == '.' {
		return fmt.Errorf("store path name %q must not begin with a period", name)
	}
	for _, c := range name {
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			strings.ContainsRune(nameSymbols, c)
		if !ok {
			return fmt.Errorf("store path name %q contains illegal character %q", name, c)
		}
	}
	return nil
}
