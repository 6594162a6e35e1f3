package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	errs := []error{
		ErrNotFound, ErrParentNotFound, ErrNotAFolder, ErrNameConflict, ErrSingleRoot,
		ErrNameCollision, ErrNestedSelection, ErrInvalidTitle, ErrNotEmpty, ErrCycle,
		ErrContentRequired, ErrFolderContent, ErrRepoExists, ErrReadOnly, ErrNoAccess,
		ErrProtected, ErrRootImmutable, ErrContentMissing, ErrInvalidHandle,
		ErrIPDepthExceeded, ErrInvalidIPReference, ErrForbiddenDirective, ErrInvalidTestbench,
		ErrWorkspace, ErrTimeout, ErrToolFailed, ErrToolNotFound,
	}

	t.Run("all error messages are unique", func(t *testing.T) {
		t.Parallel()
		seen := make(map[string]bool)
		for _, err := range errs {
			require.NotNil(t, err)
			msg := err.Error()
			assert.False(t, seen[msg], "duplicate error message: %s", msg)
			seen[msg] = true
		}
	})

	t.Run("every error has a kind", func(t *testing.T) {
		t.Parallel()
		for _, err := range errs {
			assert.NotEqual(t, KindUnknown, KindOf(err), "%v has no kind", err)
		}
	})
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"foreign", errors.New("boom"), KindUnknown},
		{"name conflict", ErrNameConflict, KindStructural},
		{"wrapped read-only", fmt.Errorf("create top.v: %w", ErrReadOnly), KindPermission},
		{"timeout", ErrTimeout, KindTimeout},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), KindTimeout},
		{"tool", ErrToolFailed, KindTool},
		{"missing content", ErrContentMissing, KindMissing},
		{"workspace", ErrWorkspace, KindResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, Retryable(fmt.Errorf("synth: %w", ErrTimeout)))
	assert.False(t, Retryable(ErrToolFailed))
	assert.False(t, Retryable(ErrNameConflict))
	assert.Equal(t, "timeout", KindTimeout.String())
}
