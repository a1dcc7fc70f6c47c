package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFilePersister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		path         string
		existingData string
		data         string
	}{
		{
			name: "just_file",
			path: "shot.png",
			data: "some data",
		},
		{
			name: "with_dir",
			path: "shots/page/shot.png",
			data: "some data",
		},
		{
			name:         "replaces",
			path:         "shot.png",
			data:         "some data",
			existingData: "existing data that is longer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			p := filepath.Join(dir, tt.path)
			if tt.existingData != "" {
				require.NoError(t, os.WriteFile(p, []byte(tt.existingData), 0o600))
			}

			l := &LocalFilePersister{}
			require.NoError(t, l.Persist(context.Background(), p, strings.NewReader(tt.data)))

			got, err := os.ReadFile(p) //nolint:gosec
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(got))

			entries, err := os.ReadDir(filepath.Dir(p))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temporary file is left behind")
		})
	}
}

func TestLocalFilePersisterBaseDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := &LocalFilePersister{BaseDir: dir}
	require.NoError(t, l.Persist(context.Background(), "a/b.png", strings.NewReader("png")))
	assert.FileExists(t, filepath.Join(dir, "a", "b.png"))

	abs := filepath.Join(t.TempDir(), "c.png")
	require.NoError(t, l.Persist(context.Background(), abs, strings.NewReader("png")))
	assert.FileExists(t, abs)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestLocalFilePersisterErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "shot.png")
	require.NoError(t, os.WriteFile(p, []byte("old"), 0o600))

	l := &LocalFilePersister{}
	err := l.Persist(context.Background(), p, io.MultiReader(strings.NewReader("new"), failingReader{}))
	require.ErrorContains(t, err, "read failed")

	got, err := os.ReadFile(p) //nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "a failed write keeps the previous file")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Persist(ctx, p, strings.NewReader("new"))
	require.ErrorIs(t, err, context.Canceled)
}
