package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "March.TXT")
	write(t, path, "hello")

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "txt", f.Ext)
	assert.Equal(t, "March.TXT", f.Name)
	assert.True(t, filepath.IsAbs(f.Path))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", f.HashHex)
	assert.Equal(t, []byte("hello"), f.Data)

	_, err = ReadFile(filepath.Join(dir, "scan.png"))
	assert.ErrorContains(t, err, "unsupported or missing extension")
	_, err = ReadFile(filepath.Join(dir, "missing.pdf"))
	assert.ErrorContains(t, err, "read:")
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.pdf"), "x")
	write(t, filepath.Join(root, "notes.md"), "x")
	write(t, filepath.Join(root, "2024", "b.txt"), "x")
	write(t, filepath.Join(root, ".cache", "c.pdf"), "x")
	write(t, filepath.Join(root, ".d.pdf"), "x")

	paths, results, stats, err := ScanDirectory(root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "2024", "b.txt"), filepath.Join(root, "a.pdf")}, paths)
	assert.Len(t, results, 2)
	assert.Equal(t, uint32(2), stats.Matched)
	assert.Zero(t, stats.Failed)

	paths, _, _, err = ScanDirectory(root, false)
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	_, _, _, err = ScanDirectory("  ", true)
	assert.Error(t, err)
}

func TestStartWatcher(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "old.pdf"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 150 * time.Millisecond}, nil)
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("no event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "old.pdf"), next())

	fresh := filepath.Join(root, "new.txt")
	write(t, fresh, "part one")
	write(t, fresh, "part one and two")
	write(t, filepath.Join(root, "ignored.md"), "x")
	assert.Equal(t, fresh, next())

	select {
	case p := <-events:
		t.Fatalf("unexpected event %q", p)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}

func TestFilters(t *testing.T) {
	for ext, want := range map[string]bool{".pdf": true, ".PDF": true, "txt": true, ".csv": false, "": false} {
		assert.Equal(t, want, statementExt(ext), "ext %q", ext)
	}
	assert.True(t, hidden("/inbox/.cache"))
	assert.True(t, hidden(".statement.pdf"))
	assert.False(t, hidden("/home/.me/inbox/jan.pdf"), "only the last element counts")
}
