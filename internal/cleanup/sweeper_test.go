package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dictakey/internal/logger"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSweepTempRemovesOnlyPrefixedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()
	touch(t, filepath.Join(dir, "RecordTemp_a.wav"), now)
	touch(t, filepath.Join(dir, "RecordTemp_b.wav"), now)
	touch(t, filepath.Join(dir, "keep.wav"), now)

	s := NewSweeper(Config{TempDir: dir, TempPrefix: "RecordTemp_"}, logger.Discard())
	n, err := s.SweepTemp()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, _ := os.ReadDir(dir)
	require.Len(t, entries, 1)
	require.Equal(t, "keep.wav", entries[0].Name())
}

func TestSweepRecordingsHonorsRetention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(dir, "old.wav"), now.Add(-8*24*time.Hour))
	touch(t, filepath.Join(dir, "fresh.wav"), now.Add(-time.Hour))
	touch(t, filepath.Join(dir, "old.txt"), now.Add(-30*24*time.Hour))

	s := NewSweeper(Config{RecordingsDir: dir, Retention: 7 * 24 * time.Hour}, logger.Discard())
	s.now = func() time.Time { return now }

	n, err := s.SweepRecordings()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoFileExists(t, filepath.Join(dir, "old.wav"))
	require.FileExists(t, filepath.Join(dir, "fresh.wav"))
	require.FileExists(t, filepath.Join(dir, "old.txt"))
}

func TestSweepDisabledAndMissingDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ancient.wav"), time.Unix(0, 0))

	n, err := NewSweeper(Config{RecordingsDir: dir}, logger.Discard()).SweepRecordings()
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = NewSweeper(Config{TempDir: filepath.Join(dir, "absent"), TempPrefix: "RecordTemp_"}, logger.Discard()).SweepTemp()
	require.NoError(t, err)
	require.Zero(t, n)
}
