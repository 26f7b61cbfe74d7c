package store

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var ownerRepoPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FetchGitHub unpacks the source tarball of a GitHub revision into the
// store under the name "source".
func (s *Local) FetchGitHub(ctx context.Context, in GitHubInput) (Path, error) {
	for _, part := range []struct{ what, v string }{{"owner", in.Owner}, {"repo", in.Repo}} {
		if !ownerRepoPattern.MatchString(part.v) || strings.HasPrefix(part.v, ".") {
			return Path{}, fmt.Errorf("invalid GitHub %s %q", part.what, part.v)
		}
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

	rev := in.Rev
	if rev == "" {
		rev = "HEAD"
	}
	tarball := fmt.Sprintf("%s/%s/%s/archive/%s.tar.gz",
		strings.TrimRight(s.cfg.GitHubURL, "/"), in.Owner, in.Repo, rev)
	if _, err := s.checkURL(tarball); err != nil {
		return Path{}, err
	}

	key := "github\x00" + in.Owner + "/" + in.Repo + "\x00" + in.Rev + "\x00" + in.NarHash
	pinned := want != nil || commitPattern.MatchString(in.Rev)
	return s.cached(key, pinned, func() (Path, error) {
		s.logger.Debug("fetching github tarball", zap.String("url", tarball))

		tmp, err := s.tempDir()
		if err != nil {
			return Path{}, err
		}
		defer os.RemoveAll(tmp)

		archive := filepath.Join(tmp, "source.tar.gz")
		if _, err := s.download(ctx, tarball, archive); err != nil {
			return Path{}, err
		}

		f, err := os.Open(archive)
		if err != nil {
			return Path{}, err
		}
		defer f.Close()
		zr, err := gzip.NewReader(f)
		if err != nil {
			return Path{}, fmt.Errorf("decompress %s: %w", tarball, err)
		}
		defer zr.Close()

		tree := filepath.Join(tmp, "source")
		if err := os.Mkdir(tree, 0o755); err != nil {
			return Path{}, err
		}
		if err := unpackTar(zr, tree, 1, s.cfg.MaxDownloadSize); err != nil {
			return Path{}, err
		}
		return s.insert(ctx, tree, "source", want, true)
	})
}
