package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/common"
	"rtlforge/internal/storage"
	"rtlforge/internal/tree"
)

// execute runs the CLI in-process. Commands share flag state, so these
// tests do not run in parallel.
func execute(t *testing.T, dir string, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--config-dir", dir, "--log-level", "off"}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func openTree(t *testing.T, dir string) (*storage.Store, *tree.Tree) {
	t.Helper()
	store, err := storage.Open(filepath.Join(dir, "data", "meta.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, tree.New(store, nil)
}

func TestRepositoryWorkflow(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "top.v")
	require.NoError(t, os.WriteFile(src, []byte("module top; endmodule\n"), 0o644))

	require.NoError(t, execute(t, dir, "config", "init"))
	assert.FileExists(t, filepath.Join(dir, "settings.yaml"))

	require.NoError(t, execute(t, dir, "repo", "init", "alice/blinky", "--top", "top"))
	require.NoError(t, execute(t, dir, "entry", "mkdir", "alice/blinky", "rtl"))
	require.NoError(t, execute(t, dir, "entry", "mkdir", "alice/blinky", "lib"))
	require.NoError(t, execute(t, dir, "entry", "put", "alice/blinky", "rtl/top.v", src))
	require.NoError(t, execute(t, dir, "entry", "mv", "alice/blinky", "rtl/top.v", "lib"))
	require.NoError(t, execute(t, dir, "entry", "include", "alice/blinky", "rtl", "off"))

	store, tr := openTree(t, dir)
	ctx := context.Background()
	repo, err := store.FindRepository(ctx, "alice", "blinky")
	require.NoError(t, err)
	assert.Equal(t, "top", repo.TopModule)

	moved, err := tr.Lookup(ctx, repo.ID, "lib/top.v")
	require.NoError(t, err)
	assert.Equal(t, "verilog", moved.Handler.String())
	_, err = tr.Lookup(ctx, repo.ID, "rtl/top.v")
	assert.ErrorIs(t, err, common.ErrNotFound)
	rtl, err := tr.Lookup(ctx, repo.ID, "rtl")
	require.NoError(t, err)
	assert.False(t, rtl.Included)
	store.Close()

	err = execute(t, dir, "entry", "rm", "alice/blinky", "build")
	assert.ErrorIs(t, err, common.ErrProtected)
	err = execute(t, dir, "repo", "init", "alice/blinky")
	assert.Error(t, err)

	require.NoError(t, execute(t, dir, "entry", "rm", "alice/blinky", "lib", "-r"))
	require.NoError(t, execute(t, dir, "sweep"))
}

func TestUnknownBackendIsRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("content:\n  backend: s3\n"), 0o600))
	err := execute(t, dir, "repo", "ls", "alice")
	assert.ErrorContains(t, err, "content.backend")
}

func TestSplitTarget(t *testing.T) {
	sources, folder := splitTarget([]string{"alice/blinky", "a.v", "b.v", "rtl"})
	assert.Equal(t, []string{"a.v", "b.v"}, sources)
	assert.Equal(t, "rtl", folder)
}
