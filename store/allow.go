package store

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const maxRedirects = 10

func (s *Local) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range s.cfg.AllowedHosts {
		if matched, _ := doublestar.Match(pattern, host); matched {
			return true
		}
	}
	return false
}

func (s *Local) pathAllowed(p string) bool {
	p = filepath.ToSlash(filepath.Clean(p))
	for _, pattern := range s.cfg.AllowedPaths {
		if matched, _ := doublestar.Match(filepath.ToSlash(pattern), p); matched {
			return true
		}
	}
	return false
}

// checkURL validates a URL the store is about to request.
func (s *Local) checkURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, errors.New("url required")
	}
	if len(rawURL) > s.cfg.MaxURLLength {
		return nil, errors.New("url exceeds max length")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("scheme must be http or https")
	}
	if err := s.checkHost(parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (s *Local) checkHost(u *url.URL) error {
	if len(s.cfg.AllowedHosts) == 0 {
		return errors.New("network access not enabled")
	}
	if host := u.Hostname(); !s.hostAllowed(host) {
		return fmt.Errorf("host not allowed: %s", host)
	}
	return nil
}

func (s *Local) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("too many redirects")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	return s.checkHost(req.URL)
}
