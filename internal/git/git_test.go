package git

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDivergedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		diverged bool
	}{
		{
			"ff refused",
			fmt.Errorf("git merge exited with status 128: fatal: Not possible to fast-forward, aborting."),
			true,
		},
		{
			"unrelated histories",
			fmt.Errorf("git merge exited with status 128: fatal: refusing to merge unrelated histories"),
			true,
		},
		{
			"network failure",
			fmt.Errorf("git fetch exited with status 128: fatal: unable to access remote"),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.diverged, isDivergedError(tt.err))
		})
	}
}

func TestErrDivergedIsSentinel(t *testing.T) {
	wrapped := fmt.Errorf("%w: details", ErrDiverged)
	assert.True(t, errors.Is(wrapped, ErrDiverged))
}

func TestTruncate(t *testing.T) {
	long := make([]byte, maxStderrBytes+100)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncate(string(long)), maxStderrBytes)
	assert.Equal(t, "short", truncate("short"))
}
