package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FetchURL downloads a single file into the store under the name "source".
// When hash is non-empty it pins the SHA-256 of the file contents.
func (s *Local) FetchURL(ctx context.Context, rawURL, hash string) (Path, error) {
	var want []byte
	if hash != "" {
		var err error
		if want, err = ParseHash(hash); err != nil {
			return Path{}, err
		}
	}
	if _, err := s.checkURL(rawURL); err != nil {
		return Path{}, err
	}

	key := "url\x00" + rawURL + "\x00" + hash
	return s.cached(key, want != nil, func() (Path, error) {
		s.logger.Debug("fetching url", zap.String("url", rawURL))

		tmp, err := s.tempDir()
		if err != nil {
			return Path{}, err
		}
		defer os.RemoveAll(tmp)

		file := filepath.Join(tmp, "source")
		sum, err := s.download(ctx, rawURL, file)
		if err != nil {
			return Path{}, err
		}
		if want != nil && !bytes.Equal(want, sum) {
			return Path{}, &HashMismatchError{What: "file downloaded from " + rawURL, Specified: want, Got: sum}
		}
		return s.insert(ctx, file, "source", nil, true)
	})
}

// download writes the body of rawURL to dst and returns its SHA-256.
func (s *Local) download(ctx context.Context, rawURL, dst string) ([]byte, error) {
	if _, err := s.checkURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unable to download '%s': HTTP %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > s.cfg.MaxDownloadSize {
		return nil, fmt.Errorf("download exceeds max size of %d bytes", s.cfg.MaxDownloadSize)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(resp.Body, s.cfg.MaxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if n > s.cfg.MaxDownloadSize {
		return nil, fmt.Errorf("download exceeds max size of %d bytes", s.cfg.MaxDownloadSize)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
