package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/common"
)

func TestRunCapturesStreams(t *testing.T) {
	t.Parallel()
	r := NewRunner(10 * time.Second)

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Equal(t, "out\nerr\n", string(res.Output()))
}

func TestRunWorkingDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0o644))

	res, err := NewRunner(10*time.Second).Run(context.Background(), []string{"cat", "marker"}, dir)
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.Equal(t, "here", string(res.Stdout))
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()
	// A long WaitDelay makes the test fail if the background child keeps
	// the output pipe open, which it would if only sh were killed.
	r := &Runner{Timeout: 200 * time.Millisecond, WaitDelay: 20 * time.Second}

	start := time.Now()
	res, err := r.Run(context.Background(), []string{"sh", "-c", "sleep 30 & echo started; wait"}, t.TempDir())
	require.ErrorIs(t, err, common.ErrTimeout)
	assert.True(t, common.Retryable(err))
	assert.Less(t, time.Since(start), 10*time.Second)
	require.NotNil(t, res)
	assert.NotZero(t, res.ExitCode)
	assert.Equal(t, "started\n", string(res.Stdout))
}

func TestRunCallerCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := NewRunner(time.Minute).Run(ctx, []string{"sleep", "30"}, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrTimeout)
}

func TestRunMissingTool(t *testing.T) {
	t.Parallel()
	_, err := NewRunner(time.Second).Run(context.Background(), []string{"rtlforge-no-such-tool"}, t.TempDir())
	assert.ErrorIs(t, err, common.ErrToolNotFound)

	_, err = NewRunner(time.Second).Run(context.Background(), nil, t.TempDir())
	assert.ErrorIs(t, err, common.ErrToolNotFound)
}
