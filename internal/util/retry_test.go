package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithResult(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := RetryWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	}, MetadataRetryOptions(context.Background())...)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestMetadataRetryStopsOnOtherErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.New("constraint failed")
	}, MetadataRetryOptions(context.Background())...)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, Backoff(time.Second, time.Minute, 0))
	assert.Equal(t, 4*time.Second, Backoff(time.Second, time.Minute, 2))
	assert.Equal(t, time.Minute, Backoff(time.Second, time.Minute, 10))
}
