package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Local is a [Store] kept in a directory on the local filesystem.
type Local struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	cache   *inputCache
	flights singleflight.Group
}

var _ Store = (*Local)(nil)

// NewLocal validates cfg and opens the store, creating its directory.
func NewLocal(cfg Config, opts ...Option) (*Local, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Local{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: zap.NewNop(),
		cache:  newInputCache(cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}

	client := *s.client
	client.CheckRedirect = s.checkRedirect
	s.client = &client
	return s, nil
}

// Dir returns the absolute store directory.
func (s *Local) Dir() string { return s.cfg.Dir }

// PrintStorePath returns the absolute filesystem path of p.
func (s *Local) PrintStorePath(p Path) string {
	return filepath.Join(s.cfg.Dir, p.String())
}

// List returns the objects currently in the store, sorted by name.
func (s *Local) List() ([]Path, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	paths := make([]Path, 0, len(entries))
	for _, e := range entries {
		p, err := ParsePath(e.Name())
		if err != nil {
			continue
		}
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Name != paths[j].Name {
			return paths[i].Name < paths[j].Name
		}
		return paths[i].Hash < paths[j].Hash
	})
	return paths, nil
}

// exists reports whether p is present in the store.
func (s *Local) exists(p Path) bool {
	_, err := os.Lstat(s.PrintStorePath(p))
	return err == nil
}

// tempDir creates a staging directory inside the store. Names starting with
// a period are never valid store paths.
func (s *Local) tempDir() (string, error) {
	return os.MkdirTemp(s.cfg.Dir, ".tmp-")
}

// insert places the tree at src into the store under name, verifying it
// against wantNar when set. With move the source is renamed into place and
// must live on the store's filesystem; otherwise it is copied.
func (s *Local) insert(ctx context.Context, src, name string, wantNar []byte, move bool) (Path, error) {
	if err := checkName(name); err != nil {
		return Path{}, err
	}
	if err := ctx.Err(); err != nil {
		return Path{}, err
	}

	nh, err := narHash(src)
	if err != nil {
		return Path{}, fmt.Errorf("hash %s: %w", src, err)
	}
	if wantNar != nil && !bytes.Equal(wantNar, nh) {
		return Path{}, &HashMismatchError{What: "NAR of " + name, Specified: wantNar, Got: nh}
	}

	p := makePath(s.cfg.Dir, name, nh)
	dst := s.PrintStorePath(p)
	if s.exists(p) {
		return p, nil
	}

	staged := src
	if !move {
		tmp, err := s.tempDir()
		if err != nil {
			return Path{}, fmt.Errorf("stage %s: %w", src, err)
		}
		defer os.RemoveAll(tmp)
		staged = filepath.Join(tmp, "object")
		if err := copyTree(ctx, src, staged); err != nil {
			return Path{}, fmt.Errorf("copy %s: %w", src, err)
		}
	}

	if err := os.Rename(staged, dst); err != nil {
		if s.exists(p) {
			return p, nil
		}
		return Path{}, fmt.Errorf("move into store: %w", err)
	}

	s.logger.Debug("added store path",
		zap.String("path", dst),
		zap.String("narHash", FormatSRI(nh)))
	return p, nil
}

// AddToStore copies a local file or directory into the store. The path is
// resolved through symlinks and must match one of the allowed path patterns.
func (s *Local) AddToStore(ctx context.Context, path string) (Path, error) {
	if len(s.cfg.AllowedPaths) == 0 {
		return Path{}, errors.New("adding local paths is not enabled")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Path{}, fmt.Errorf("invalid path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Path{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	if rel, ok := s.storeRelative(resolved); ok {
		first, _, _ := strings.Cut(rel, string(filepath.Separator))
		if p, err := ParsePath(first); err == nil && s.exists(p) {
			return p, nil
		}
	}

	if !s.pathAllowed(resolved) {
		return Path{}, fmt.Errorf("path not allowed: %s", resolved)
	}

	return s.insert(ctx, resolved, filepath.Base(resolved), nil, false)
}

func (s *Local) storeRelative(p string) (string, bool) {
	rel, err := filepath.Rel(s.cfg.Dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// copyTree copies regular files, directories and symlinks from src to dst.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch mode := info.Mode(); {
		case mode.IsDir():
			return os.MkdirAll(target, 0o755)
		case mode&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case mode.IsRegular():
			return copyFile(p, target, mode.Perm()&0o111 != 0)
		default:
			return fmt.Errorf("file %q has an unsupported type", p)
		}
	})
}

func copyFile(src, dst string, executable bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	perm := os.FileMode(0o644)
	if executable {
		perm = 0o755
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
