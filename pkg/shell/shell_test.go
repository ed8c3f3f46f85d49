//go:build !windows

package shell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutput(t *testing.T) {
	res, err := NewExecRunner(0).Run(context.Background(), "sh", "-c", "echo eden 0.0.3; echo warn >&2")
	require.NoError(t, err)
	assert.Equal(t, "eden 0.0.3\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.Zero(t, res.ExitCode)
}

func TestRunNonZeroExit(t *testing.T) {
	res, err := NewExecRunner(0).Run(context.Background(), "sh", "-c", "echo no such image >&2; exit 3")

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, exitErr.Error(), "no such image")
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	_, err := NewExecRunner(100*time.Millisecond).Run(context.Background(), "sleep", "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	_, err := NewExecRunner(0).Run(context.Background(), "definitely-not-a-real-binary-eden")
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestOutputTrims(t *testing.T) {
	out, err := Output(context.Background(), NewExecRunner(0), "echo", "  1.2.3  ")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", out)
}
