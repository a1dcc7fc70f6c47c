package common

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mccutchen/go-httpbin/httpbin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/downstage/log"
)

// TestRealBrowser drives an actual browser. It only runs when
// DOWNSTAGE_BROWSER_EXECUTABLE_PATH points to one.
func TestRealBrowser(t *testing.T) {
	t.Parallel()

	if _, ok := os.LookupEnv(EnvExecutablePath); !ok {
		t.Skipf("%s is not set", EnvExecutablePath)
	}

	srv := httptest.NewServer(httpbin.New().Handler())
	t.Cleanup(srv.Close)

	opts := NewLaunchOptions()
	require.NoError(t, opts.Parse(nil))
	opts.Args = append(opts.Args, "--no-sandbox")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := Launch(ctx, opts, log.NewNullLogger())
	require.NoError(t, err)
	defer b.Release()

	v, err := b.Version(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, v)

	p, err := b.NewPage(ctx)
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Goto(ctx, srv.URL+"/html"))

	// Goto doesn't wait for the document to load.
	var h1 *ElementHandle
	require.Eventually(t, func() bool {
		h1, err = p.QuerySelector(ctx, "h1")
		return err == nil
	}, 10*time.Second, 100*time.Millisecond, "no h1 on the page: %v", err)

	box, err := h1.BoundingBox(ctx)
	require.NoError(t, err)
	assert.Positive(t, box.Width)
	require.NoError(t, h1.Click(ctx))

	path := filepath.Join(t.TempDir(), "page.png")
	buf, err := p.Screenshot(ctx, path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.NotEmpty(t, buf)

	require.NoError(t, p.Close(ctx))
}
