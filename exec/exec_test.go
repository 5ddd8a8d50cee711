package exec

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	out, err := Run(context.Background(), Command{
		Binary: "echo",
		Args:   []string{"hello", "world"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hello world", strings.TrimSpace(string(out.Stdout)))
	assert.Positive(t, out.Duration)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	out, err := Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo oops >&2; exit 3"},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "oops", strings.TrimSpace(string(out.Stderr)))
}

func TestRun_Stdin(t *testing.T) {
	out, err := Run(context.Background(), Command{
		Binary: "cat",
		Stdin:  []byte("piped input"),
	})

	require.NoError(t, err)
	assert.Equal(t, "piped input", string(out.Stdout))
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), Command{
		Binary:  "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := Run(context.Background(), Command{Binary: "definitely-not-installed-anywhere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution failed")
}

func TestRun_RequiresBinary(t *testing.T) {
	_, err := Run(context.Background(), Command{})
	require.Error(t, err)
}

func TestRun_Env(t *testing.T) {
	out, err := Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo $PROBE"},
		Env:    []string{"PROBE=42"},
	})

	require.NoError(t, err)
	assert.Equal(t, "42", strings.TrimSpace(string(out.Stdout)))
}

func TestRunJSON(t *testing.T) {
	var decoded map[string]any
	out, err := RunJSON(context.Background(), Command{
		Binary: "echo",
		Args:   []string{`{"registrar": "Example Registrar", "active": true}`},
	}, &decoded)

	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "Example Registrar", decoded["registrar"])
	assert.Equal(t, true, decoded["active"])
}

func TestRunJSON_FailsOnNonZeroExit(t *testing.T) {
	var decoded map[string]any
	_, err := RunJSON(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo nope >&2; exit 1"},
	}, &decoded)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 1")
}

func TestRunJSON_FailsOnInvalidOutput(t *testing.T) {
	var decoded map[string]any
	_, err := RunJSON(context.Background(), Command{
		Binary: "echo",
		Args:   []string{"not json"},
	}, &decoded)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestBinaryExists(t *testing.T) {
	assert.True(t, BinaryExists("sh"))
	assert.False(t, BinaryExists("definitely-not-installed-anywhere"))
}

func TestBinaryPath(t *testing.T) {
	path, err := BinaryPath("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	_, err = BinaryPath("definitely-not-installed-anywhere")
	assert.Error(t, err)
}
