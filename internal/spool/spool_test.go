package spool

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSpool(t *testing.T) (*Spool, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/spool")
	require.NoError(t, err)
	return s, fs
}

func TestNew_CreatesDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := New(fs, "/var/spool/sonicsight")
	require.NoError(t, err)

	exists, err := afero.DirExists(fs, "/var/spool/sonicsight")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWrite_PreservesExtensionAndContent(t *testing.T) {
	s, fs := createTestSpool(t)

	f, err := s.Write("Bark.WAV", strings.NewReader("riff data"))
	require.NoError(t, err)

	assert.Equal(t, "/spool", filepath.Dir(f.Path))
	assert.Equal(t, ".wav", filepath.Ext(f.Path))
	assert.Equal(t, int64(9), f.Size)

	data, err := afero.ReadFile(fs, f.Path)
	require.NoError(t, err)
	assert.Equal(t, "riff data", string(data))
}

func TestWrite_UniqueNames(t *testing.T) {
	s, _ := createTestSpool(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		f, err := s.Write("same.mp3", strings.NewReader("x"))
		require.NoError(t, err)
		assert.False(t, seen[f.Path], "duplicate spool path %s", f.Path)
		seen[f.Path] = true
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWrite_FailureLeavesNothing(t *testing.T) {
	s, fs := createTestSpool(t)

	_, err := s.Write("bark.wav", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)

	entries, err := afero.ReadDir(fs, "/spool")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemove_Idempotent(t *testing.T) {
	s, fs := createTestSpool(t)

	f, err := s.Write("bark.wav", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())

	exists, err := afero.Exists(fs, f.Path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWith_RemovesOnSuccessAndFailure(t *testing.T) {
	s, fs := createTestSpool(t)

	var seen string
	err := s.With("bark.wav", strings.NewReader("x"), func(path string) error {
		seen = path
		exists, _ := afero.Exists(fs, path)
		assert.True(t, exists, "file must exist while fn runs")
		return nil
	})
	require.NoError(t, err)
	exists, _ := afero.Exists(fs, seen)
	assert.False(t, exists)

	boom := errors.New("inference exploded")
	err = s.With("meow.mp3", strings.NewReader("x"), func(path string) error {
		seen = path
		return boom
	})
	assert.ErrorIs(t, err, boom)
	exists, _ = afero.Exists(fs, seen)
	assert.False(t, exists)
}

func TestSweep(t *testing.T) {
	s, fs := createTestSpool(t)

	old, err := s.Write("old.wav", strings.NewReader("x"))
	require.NoError(t, err)
	fresh, err := s.Write("fresh.wav", strings.NewReader("x"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, fs.Chtimes(old.Path, past, past))

	removed, err := s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	exists, _ := afero.Exists(fs, old.Path)
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, fresh.Path)
	assert.True(t, exists)
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".wav", Ext("bark.wav"))
	assert.Equal(t, ".mp3", Ext("MEOW.MP3"))
	assert.Equal(t, ".ogg", Ext("dir/inner.ogg"))
	assert.Equal(t, "", Ext("noext"))
	assert.Equal(t, "", Ext("weird.averyveryverylongextension"))
}

func TestRunSweeper_SweepsOnStartAndStops(t *testing.T) {
	s, fs := createTestSpool(t)

	old, err := s.Write("old.wav", strings.NewReader("x"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, fs.Chtimes(old.Path, past, past))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Hour, time.Hour, log.New(io.Discard))
		close(done)
	}()

	assert.Eventually(t, func() bool {
		exists, _ := afero.Exists(fs, old.Path)
		return !exists
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
