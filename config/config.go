// Package config loads environment settings from a file and EMERALD_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald/internal/logging"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "EMERALD"

// Config holds the settings of one environment.
type Config struct {
	ParserThreads int
	RunnerThreads int
	SweepInterval time.Duration
	Levels        logging.Levels
	// Grammar is a grammar description file. Empty selects the built-in
	// grammar.
	Grammar string
	// CacheDir holds generated parse tables. Empty disables the cache.
	CacheDir string
}

// DefaultThreads is the default size of each worker pool.
func DefaultThreads() int {
	if n := runtime.NumCPU() / 2; n > 1 {
		return n
	}
	return 1
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ParserThreads: DefaultThreads(),
		RunnerThreads: DefaultThreads(),
		SweepInterval: time.Second,
		Levels:        logging.DefaultLevels(),
		CacheDir:      defaultCacheDir(),
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "emerald")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	def := Default()
	v.SetDefault("parser_threads", def.ParserThreads)
	v.SetDefault("runner_threads", def.RunnerThreads)
	v.SetDefault("sweep_interval", def.SweepInterval)
	v.SetDefault("log.compile", def.Levels.Compile.String())
	v.SetDefault("log.runtime", def.Levels.Runtime.String())
	v.SetDefault("log.print", def.Levels.Print.String())
	v.SetDefault("grammar", "")
	v.SetDefault("cache_dir", def.CacheDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the file at path, if any, over the defaults. The format follows
// the file extension (yaml, toml or json).
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes settings from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		ParserThreads: v.GetInt("parser_threads"),
		RunnerThreads: v.GetInt("runner_threads"),
		SweepInterval: v.GetDuration("sweep_interval"),
		Grammar:       v.GetString("grammar"),
		CacheDir:      v.GetString("cache_dir"),
	}
	var err error
	if cfg.Levels.Compile, err = logging.ParseLevel(v.GetString("log.compile")); err != nil {
		return Config{}, fmt.Errorf("config: log.compile: %w", err)
	}
	if cfg.Levels.Runtime, err = logging.ParseLevel(v.GetString("log.runtime")); err != nil {
		return Config{}, fmt.Errorf("config: log.runtime: %w", err)
	}
	if cfg.Levels.Print, err = logging.ParseLevel(v.GetString("log.print")); err != nil {
		return Config{}, fmt.Errorf("config: log.print: %w", err)
	}
	if cfg.ParserThreads < 1 || cfg.RunnerThreads < 1 {
		return Config{}, fmt.Errorf("config: thread counts must be positive")
	}
	return cfg, nil
}
