package common

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLaunchOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts := NewLaunchOptions()
	require.NoError(t, opts.Parse(lookupFrom(nil)))

	assert.Empty(t, opts.ExecutablePath)
	assert.Empty(t, opts.Args)
	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.False(t, opts.Debug)
	assert.Equal(t, ".*", opts.LogCategoryFilter)
	assert.Zero(t, opts.RateLimit)
}

func TestLaunchOptionsParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		env    map[string]string
		assert func(t *testing.T, opts *LaunchOptions)
		err    string
	}{
		{
			name: "executable_path",
			env:  map[string]string{EnvExecutablePath: " /usr/bin/chromium "},
			assert: func(t *testing.T, opts *LaunchOptions) {
				t.Helper()
				assert.Equal(t, "/usr/bin/chromium", opts.ExecutablePath)
			},
		},
		{
			name: "args",
			env:  map[string]string{EnvArgs: "no-sandbox, --window-size=800,600 ,,"},
			assert: func(t *testing.T, opts *LaunchOptions) {
				t.Helper()
				assert.Equal(t, []string{"--no-sandbox", "--window-size=800", "--600"}, opts.Args)
			},
		},
		{
			name: "headless",
			env:  map[string]string{EnvHeadless: "false"},
			assert: func(t *testing.T, opts *LaunchOptions) {
				t.Helper()
				assert.False(t, opts.Headless)
			},
		},
		{
			name: "timeout",
			env:  map[string]string{EnvTimeout: "5s"},
			assert: func(t *testing.T, opts *LaunchOptions) {
				t.Helper()
				assert.Equal(t, 5*time.Second, opts.Timeout)
			},
		},
		{
			name: "debug_and_filter",
			env:  map[string]string{EnvDebug: "true", EnvLogCategoryFilter: "^Client:"},
			assert: func(t *testing.T, opts *LaunchOptions) {
				t.Helper()
				assert.True(t, opts.Debug)
				assert.Equal(t, "^Client:", opts.LogCategoryFilter)
			},
		},
		{
			name: "err/headless",
			env:  map[string]string{EnvHeadless: "maybe"},
			err:  "parsing DOWNSTAGE_BROWSER_HEADLESS",
		},
		{
			name: "err/timeout",
			env:  map[string]string{EnvTimeout: "30"},
			err:  "parsing DOWNSTAGE_BROWSER_TIMEOUT",
		},
		{
			name: "err/negative_timeout",
			env:  map[string]string{EnvTimeout: "-1s"},
			err:  "timeout must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := NewLaunchOptions()
			err := opts.Parse(lookupFrom(tt.env))
			if tt.err != "" {
				require.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			tt.assert(t, opts)
		})
	}
}

func TestLaunchOptionsParseYAML(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		opts := NewLaunchOptions()
		err := opts.ParseYAML(strings.NewReader(`
executablePath: /opt/chrome/chrome
args: [no-sandbox, --mute-audio]
env: [TZ=UTC]
headless: false
timeout: 1m
rateLimit: 50
rateBurst: 10
`))
		require.NoError(t, err)
		assert.Equal(t, "/opt/chrome/chrome", opts.ExecutablePath)
		assert.Equal(t, []string{"--no-sandbox", "--mute-audio"}, opts.Args)
		assert.Equal(t, []string{"TZ=UTC"}, opts.Env)
		assert.False(t, opts.Headless)
		assert.Equal(t, time.Minute, opts.Timeout)
		assert.Equal(t, 50.0, opts.RateLimit)
		assert.Equal(t, 10, opts.RateBurst)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		opts := NewLaunchOptions()
		require.NoError(t, opts.ParseYAML(strings.NewReader("")))
		assert.Equal(t, NewLaunchOptions(), opts)
	})

	t.Run("err/unknown_field", func(t *testing.T) {
		t.Parallel()

		opts := NewLaunchOptions()
		err := opts.ParseYAML(strings.NewReader("slowMo: 1s\n"))
		require.ErrorContains(t, err, "decoding launch options")
	})

	t.Run("err/env", func(t *testing.T) {
		t.Parallel()

		opts := NewLaunchOptions()
		err := opts.ParseYAML(strings.NewReader("env: [TZ]\n"))
		require.ErrorContains(t, err, `"TZ" is not in KEY=VALUE form`)
	})
}
