// Package subject runs the external test program under validation.
//
// The subject is only ever driven through its command line. A command line is
// handed to /bin/sh so that raw flags and post-processing steps keep their
// shell meaning ($$, $?, redirections).
package subject

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result is the captured outcome of one subject process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes a shell command line to completion.
type Runner interface {
	Run(ctx context.Context, commandLine string) (*Result, error)
}

// ShellRunner runs command lines through a POSIX shell.
type ShellRunner struct {
	// Shell defaults to /bin/sh.
	Shell string

	// Dir is the working directory of the subject; empty means the current
	// directory.
	Dir string

	// Env, when non-empty, replaces the environment of the subject.
	Env []string
}

// Run executes commandLine and waits for it to exit. The exit status of a
// process that ran is reported in Result, not as an error; an error means
// the shell could not be started at all.
func (r *ShellRunner) Run(ctx context.Context, commandLine string) (*Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, shell, "-c", commandLine)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = r.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("execute %q: %w", commandLine, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}
