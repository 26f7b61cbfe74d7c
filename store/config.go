package store

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	DefaultMaxURLLength    = 8192
	DefaultMaxDownloadSize = 512 << 20 // 512MB
	DefaultRequestTimeout  = 5 * time.Minute
	DefaultCacheTTL        = time.Hour
	DefaultGitHubURL       = "https://github.com"
	DefaultGitCommand      = "git"
)

// Config configures a [Local] store.
type Config struct {
	// Dir holds the store objects. It is created if missing.
	Dir string `validate:"required"`

	// AllowedHosts are doublestar patterns matched against the host of
	// every URL fetched, redirects included. Empty denies all network access.
	AllowedHosts []string `validate:"dive,required"`

	// AllowedPaths are doublestar patterns matched against the resolved
	// absolute path of local files added to the store or cloned with git.
	// Empty denies all local access.
	AllowedPaths []string `validate:"dive,required"`

	MaxURLLength    int           `validate:"gte=0"`
	MaxDownloadSize int64         `validate:"gte=0"`
	RequestTimeout  time.Duration `validate:"gte=0"`

	// CacheTTL bounds how long an unpinned fetch (no hash, no commit) is
	// reused. Pinned fetches are reused for the life of the store.
	CacheTTL time.Duration `validate:"gte=0"`

	GitHubURL  string `validate:"omitempty,url"`
	GitCommand string
}

// DefaultDir returns the default store directory under the user cache dir.
func DefaultDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "nixwasm", "store")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "nixwasm", "store")
	}
	return filepath.Join(os.TempDir(), "nixwasm-store")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) normalize() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}
	for _, p := range append(append([]string(nil), c.AllowedHosts...), c.AllowedPaths...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid store config: bad pattern %q", p)
		}
	}

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("resolve store dir: %w", err)
	}
	c.Dir = dir

	if c.MaxURLLength == 0 {
		c.MaxURLLength = DefaultMaxURLLength
	}
	if c.MaxDownloadSize == 0 {
		c.MaxDownloadSize = DefaultMaxDownloadSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.GitHubURL == "" {
		c.GitHubURL = DefaultGitHubURL
	}
	if c.GitCommand == "" {
		c.GitCommand = DefaultGitCommand
	}
	return nil
}

// Option configures a [Local] store.
type Option func(*Local)

// WithLogger sets the logger for fetch and insert events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Local) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP transport. Redirect checking is still
// installed on the client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Local) {
		if c != nil {
			s.client = c
		}
	}
}

// WithClock replaces the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Local) {
		s.cache.now = now
	}
}
