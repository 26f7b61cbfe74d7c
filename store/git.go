package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	revPattern    = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	commitPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

func checkRev(rev string) error {
	if rev == "" {
		return nil
	}
	if strings.HasPrefix(rev, "-") || strings.Contains(rev, "..") || !revPattern.MatchString(rev) {
		return fmt.Errorf("invalid revision %q", rev)
	}
	return nil
}

// FetchGit exports a revision of a git repository into the store under the
// name "source". Files marked export-ignore are left out and the .git
// directory is never included.
func (s *Local) FetchGit(ctx context.Context, in GitInput) (Path, error) {
	if err := s.checkGitURL(in.URL); err != nil {
		return Path{}, err
	}
	if err := checkRev(in.Rev); err != nil {
		return Path{}, err
	}
	var want []byte
	if in.NarHash != "" {
		var err error
		if want, err = ParseHash(in.NarHash); err != nil {
			return Path{}, err
		}
	}

	key := "git\x00" + in.URL + "\x00" + in.Rev + "\x00" + in.NarHash
	pinned := want != nil || commitPattern.MatchString(in.Rev)
	return s.cached(key, pinned, func() (Path, error) {
		s.logger.Debug("fetching git", zap.String("url", in.URL), zap.String("rev", in.Rev))

		tmp, err := s.tempDir()
		if err != nil {
			return Path{}, err
		}
		defer os.RemoveAll(tmp)

		repo := filepath.Join(tmp, "repo.git")
		if _, err := s.git(ctx, "clone", "--bare", "--quiet", "--", in.URL, repo); err != nil {
			return Path{}, err
		}

		rev := in.Rev
		if rev == "" {
			rev = "HEAD"
		}
		archive, err := s.git(ctx, "--git-dir", repo, "archive", "--format=tar", rev)
		if err != nil {
			return Path{}, err
		}

		tree := filepath.Join(tmp, "source")
		if err := os.Mkdir(tree, 0o755); err != nil {
			return Path{}, err
		}
		if err := unpackTar(bytes.NewReader(archive), tree, 0, s.cfg.MaxDownloadSize); err != nil {
			return Path{}, err
		}
		return s.insert(ctx, tree, "source", want, true)
	})
}

func (s *Local) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.cfg.GitCommand, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git %s: %s", args[0], msg)
	}
	if int64(stdout.Len()) > s.cfg.MaxDownloadSize {
		return nil, fmt.Errorf("git %s output exceeds max size of %d bytes", args[0], s.cfg.MaxDownloadSize)
	}
	return stdout.Bytes(), nil
}

// checkGitURL applies the host allowlist to remote repositories and the path
// allowlist to local ones.
func (s *Local) checkGitURL(raw string) error {
	if raw == "" {
		return errors.New("url required")
	}
	if strings.HasPrefix(raw, "-") || len(raw) > s.cfg.MaxURLLength {
		return fmt.Errorf("invalid git url %q", raw)
	}

	if filepath.IsAbs(raw) {
		return s.checkLocalRepo(raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid git url: %w", err)
	}
	switch u.Scheme {
	case "file":
		return s.checkLocalRepo(u.Path)
	case "http", "https", "ssh", "git":
		return s.checkHost(u)
	default:
		return fmt.Errorf("unsupported git url scheme %q", u.Scheme)
	}
}

func (s *Local) checkLocalRepo(p string) error {
	if len(s.cfg.AllowedPaths) == 0 {
		return errors.New("local repositories are not enabled")
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", p, err)
	}
	if !s.pathAllowed(resolved) {
		return fmt.Errorf("path not allowed: %s", resolved)
	}
	return nil
}
