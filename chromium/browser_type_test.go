package chromium

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/downstage/api"
	"github.com/grafana/downstage/common"
	"github.com/grafana/downstage/log"
	"github.com/grafana/downstage/testutils/cdptest"
)

func lookPathIn(found ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, f := range found {
			if f == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestBrowserTypeExecutablePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configured string
		inPath     []string
		want       string
	}{
		{name: "configured", configured: "/opt/chrome/chrome", inPath: []string{"chromium"}, want: "/opt/chrome/chrome"},
		{name: "first_in_path", inPath: []string{"google-chrome", "chromium"}, want: "/usr/bin/chromium"},
		{name: "fallback", inPath: []string{"google-chrome-stable"}, want: "/usr/bin/google-chrome-stable"},
		{name: "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := common.NewLaunchOptions()
			opts.ExecutablePath = tt.configured
			bt := NewBrowserType(opts, log.NewNullLogger())
			bt.lookPath = lookPathIn(tt.inPath...)

			assert.Equal(t, tt.want, bt.ExecutablePath())
		})
	}
}

func TestBrowserTypeLaunchNoExecutable(t *testing.T) {
	t.Parallel()

	bt := NewBrowserType(nil, log.NewNullLogger())
	bt.lookPath = lookPathIn()
	assert.Equal(t, "chromium", bt.Name())

	b, pid, err := bt.Launch(context.Background())
	require.ErrorIs(t, err, ErrExecutableNotFound)
	assert.Nil(t, b)
	assert.Zero(t, pid)
}

func TestBrowserTypeLaunchSpawnError(t *testing.T) {
	t.Parallel()

	opts := common.NewLaunchOptions()
	opts.ExecutablePath = "/nonexistent/downstage-browser"
	bt := NewBrowserType(opts, log.NewNullLogger())

	_, _, err := bt.Launch(context.Background())
	require.ErrorIs(t, err, common.ErrProcessSpawn)
}

func pageHandler(req cdptest.Request) string {
	switch req.Method {
	case "Target.createTarget":
		return `{"targetId":"T1"}`
	case "Target.attachToTarget":
		return `{"sessionId":"S1"}`
	case "DOM.getDocument":
		return `{"root":{"nodeId":1,"backendNodeId":1,"nodeType":9,"nodeName":"#document","localName":"","nodeValue":""}}`
	case "DOM.querySelector":
		return `{"nodeId":7}`
	default:
		return `{}`
	}
}

func TestBrowserTypeConnect(t *testing.T) {
	t.Parallel()

	ep := cdptest.NewEndpoint(t)
	bt := NewBrowserType(nil, log.NewNullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := bt.Connect(ctx, ep.URL)
	require.NoError(t, err)
	conn := ep.Serve(pageHandler)
	defer b.Release()

	assert.True(t, b.IsConnected())
	assert.Equal(t, -1, b.Pid())

	clone := b.Clone()
	require.IsType(t, &Browser{}, clone)
	clone.Release()

	p, err := b.NewPage(ctx)
	require.NoError(t, err)
	require.IsType(t, &Page{}, p)
	defer p.Release()

	doc, err := p.Document(ctx)
	require.NoError(t, err)
	el, err := doc.QuerySelector(ctx, "div")
	require.NoError(t, err)
	require.IsType(t, &ElementHandle{}, el)
	assert.EqualValues(t, 7, el.(*ElementHandle).NodeID())

	el, err = p.QuerySelector(ctx, "div")
	require.NoError(t, err)
	assert.NotNil(t, el)
	assert.Equal(t, "S1", conn.WaitRequest("DOM.querySelector").SessionID)

	pc := p.Clone()
	require.IsType(t, &Page{}, pc)
	pc.Release()
}

func TestBrowserTypeConnectErrors(t *testing.T) {
	t.Parallel()

	bt := NewBrowserType(nil, log.NewNullLogger())
	b, err := bt.Connect(context.Background(), "not a url")
	require.Error(t, err)
	assert.Nil(t, b)
}

func TestWrapElement(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	el, err := wrapElement(nil, errBoom)
	require.ErrorIs(t, err, errBoom)
	assert.Nil(t, el, "a failed lookup is a nil interface, not a typed nil")

	var _ api.ElementHandle = &ElementHandle{}
}
