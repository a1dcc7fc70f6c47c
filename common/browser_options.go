package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override launch options.
const (
	EnvExecutablePath    = "DOWNSTAGE_BROWSER_EXECUTABLE_PATH"
	EnvArgs              = "DOWNSTAGE_BROWSER_ARGS"
	EnvHeadless          = "DOWNSTAGE_BROWSER_HEADLESS"
	EnvTimeout           = "DOWNSTAGE_BROWSER_TIMEOUT"
	EnvDebug             = "DOWNSTAGE_BROWSER_DEBUG"
	EnvLogCategoryFilter = "DOWNSTAGE_BROWSER_LOG_CATEGORY_FILTER"
)

const (
	// DefaultTimeout bounds the endpoint discovery of a launched browser.
	DefaultTimeout = 30 * time.Second

	defaultLogCategoryFilter = ".*"
)

// LookupEnvFunc looks up an environment variable, like os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// LaunchOptions stores the options for launching or connecting to a
// browser.
type LaunchOptions struct {
	// ExecutablePath is the browser binary. When empty, well-known
	// Chromium names are looked up in PATH.
	ExecutablePath string `yaml:"executablePath"`
	// Args are extra command line flags, appended to the automation
	// flags.
	Args []string `yaml:"args"`
	// Env holds extra KEY=VALUE environment entries for the browser.
	Env      []string      `yaml:"env"`
	Headless bool          `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`
	// UserDataDir is used instead of a temporary profile directory when
	// set. It is never removed.
	UserDataDir       string `yaml:"userDataDir"`
	Debug             bool   `yaml:"debug"`
	LogCategoryFilter string `yaml:"logCategoryFilter"`
	// RateLimit is the maximum number of commands per second sent to
	// the browser. Zero disables throttling.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// NewLaunchOptions returns the default launch options.
func NewLaunchOptions() *LaunchOptions {
	return &LaunchOptions{
		Env:               []string{},
		Headless:          true,
		Timeout:           DefaultTimeout,
		LogCategoryFilter: defaultLogCategoryFilter,
		RateBurst:         1,
	}
}

// Parse overrides the options with the environment variables found by
// lookup. A nil lookup uses os.LookupEnv.
func (l *LaunchOptions) Parse(lookup LookupEnvFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	for _, key := range []string{
		EnvExecutablePath,
		EnvArgs,
		EnvHeadless,
		EnvTimeout,
		EnvDebug,
		EnvLogCategoryFilter,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := l.set(key, v); err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
	}

	return l.Validate()
}

func (l *LaunchOptions) set(key, value string) (err error) {
	switch key {
	case EnvExecutablePath:
		l.ExecutablePath = strings.TrimSpace(value)
	case EnvArgs:
		l.Args = parseArgs(value)
	case EnvHeadless:
		l.Headless, err = strconv.ParseBool(value)
	case EnvTimeout:
		l.Timeout, err = time.ParseDuration(value)
	case EnvDebug:
		l.Debug, err = strconv.ParseBool(value)
	case EnvLogCategoryFilter:
		l.LogCategoryFilter = value
	}

	return err //nolint:wrapcheck
}

// ParseYAML overrides the options with the ones found in r.
func (l *LaunchOptions) ParseYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(l); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding launch options: %w", err)
	}
	l.Args = normalizeArgs(l.Args)

	return l.Validate()
}

// Validate checks the options for values that can't work.
func (l *LaunchOptions) Validate() error {
	if l.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", l.Timeout)
	}
	if l.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", l.RateLimit)
	}
	if l.RateLimit > 0 && l.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1, got %d", l.RateBurst)
	}
	for _, kv := range l.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("environment entry %q is not in KEY=VALUE form", kv)
		}
	}

	return nil
}

// parseArgs splits a comma separated list of browser flags.
func parseArgs(s string) []string {
	var args []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}

	return normalizeArgs(args)
}

// normalizeArgs prefixes flags given without dashes, so that both
// "no-sandbox" and "--no-sandbox" work.
func normalizeArgs(args []string) []string {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			args[i] = "--" + a
		}
	}

	return args
}
