package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/nixwasm/executor"
	"github.com/caffeineduck/nixwasm/store"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// cliConfig is the effective configuration: defaults, then the config
// file, then any flags given explicitly.
type cliConfig struct {
	Store      storeConfig   `yaml:"store"`
	System     string        `yaml:"system,omitempty"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
	Memory     string        `yaml:"memory" validate:"omitempty,oneof=1mb 16mb 64mb 256mb 1gb"`
	CacheLimit int           `yaml:"cache_limit" validate:"gte=0"`
	NoCache    bool          `yaml:"no_cache"`
}

type storeConfig struct {
	Dir          string   `yaml:"dir"`
	AllowedHosts []string `yaml:"allowed_hosts,omitempty"`
	AllowedPaths []string `yaml:"allowed_paths,omitempty"`
	GitHubURL    string   `yaml:"github_url,omitempty" validate:"omitempty,url"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Store:   storeConfig{Dir: store.DefaultDir()},
		Timeout: 30 * time.Second,
		Memory:  "256mb",
	}
}

var validate = validator.New()

func loadConfig(cmd *cobra.Command) (*cliConfig, error) {
	cfg := defaultCLIConfig()
	flags := cmd.Flags()

	if path, _ := flags.GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if flags.Changed("store") {
		cfg.Store.Dir, _ = flags.GetString("store")
	}
	if flags.Changed("allow-host") {
		hosts, _ := flags.GetStringSlice("allow-host")
		cfg.Store.AllowedHosts = append(cfg.Store.AllowedHosts, hosts...)
	}
	if flags.Changed("allow-path") {
		paths, _ := flags.GetStringSlice("allow-path")
		cfg.Store.AllowedPaths = append(cfg.Store.AllowedPaths, paths...)
	}
	if flags.Changed("system") {
		cfg.System, _ = flags.GetString("system")
	}
	if flags.Changed("memory") {
		cfg.Memory, _ = flags.GetString("memory")
	}
	if flags.Changed("cache-limit") {
		cfg.CacheLimit, _ = flags.GetInt("cache-limit")
	}
	if flags.Changed("no-cache") {
		cfg.NoCache, _ = flags.GetBool("no-cache")
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}

	cfg.Memory = strings.ToLower(cfg.Memory)
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return executor.MemoryLimit1MB
	case "16mb":
		return executor.MemoryLimit16MB
	case "64mb":
		return executor.MemoryLimit64MB
	case "256mb":
		return executor.MemoryLimit256MB
	case "1gb":
		return executor.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the --config file
and command line flags, as YAML. The output can be saved and passed back
with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
