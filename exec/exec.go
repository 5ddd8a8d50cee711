// Package exec runs external reconnaissance tools with bounded execution.
// It wraps os/exec with a context-aware API for code plugins that shell
// out to installed binaries (whois, dig, and similar) instead of calling
// an HTTP API.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command describes one external tool invocation.
type Command struct {
	// Binary is the name or path of the tool to run (required).
	Binary string

	// Args are the command-line arguments.
	Args []string

	// WorkDir is the working directory. Empty inherits the process's.
	WorkDir string

	// Env is the environment in "KEY=value" form. Nil inherits the
	// process environment.
	Env []string

	// Timeout bounds the execution. Zero relies on the caller's context.
	Timeout time.Duration

	// Stdin is data written to the tool's standard input.
	Stdin []byte
}

// Output holds a completed invocation's captured streams.
type Output struct {
	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit code; zero means success.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Run executes the command and captures its output.
//
// A non-zero exit code is not an error: the Output carries the code and
// the caller decides how to treat it, since several recon tools use exit
// codes to signal "no results". Only execution failures (binary missing,
// timeout, cancellation) return an error.
func Run(ctx context.Context, cmd Command) (*Output, error) {
	if cmd.Binary == "" {
		return nil, errors.New("binary is required")
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)

	if cmd.WorkDir != "" {
		proc.Dir = cmd.WorkDir
	}
	if cmd.Env != nil {
		proc.Env = cmd.Env
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if len(cmd.Stdin) > 0 {
		proc.Stdin = bytes.NewReader(cmd.Stdin)
	}

	start := time.Now()
	err := proc.Run()

	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("command timed out after %v", cmd.Timeout)
		}
		if ctx.Err() == context.Canceled {
			return out, fmt.Errorf("command cancelled")
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}

		return out, fmt.Errorf("command execution failed: %w", err)
	}

	return out, nil
}

// RunJSON executes the command and decodes its standard output as JSON
// into v. Tools with a --json flag get structured results this way without
// each plugin re-implementing the decode.
func RunJSON(ctx context.Context, cmd Command, v any) (*Output, error) {
	out, err := Run(ctx, cmd)
	if err != nil {
		return out, err
	}

	if out.ExitCode != 0 {
		return out, fmt.Errorf("command exited with code %d: %s", out.ExitCode, bytes.TrimSpace(out.Stderr))
	}

	if err := json.Unmarshal(out.Stdout, v); err != nil {
		return out, fmt.Errorf("failed to decode command output: %w", err)
	}

	return out, nil
}

// BinaryExists reports whether a binary is present in PATH. Plugins that
// wrap an external tool check this at registration time so a missing
// install fails startup, not the first scan.
func BinaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// BinaryPath resolves a binary's full path in PATH.
func BinaryPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found in PATH: %w", name, err)
	}
	return path, nil
}
