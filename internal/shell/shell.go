// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

// Package shell runs external programs and captures their output. Every
// package-manager, snap, bootloader and key tool chimg touches goes through
// here.
package shell

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/canonical/chimg/internal/logger"
)

// ExecError is returned when a program exits with an unacceptable code. It
// carries everything needed to diagnose the failure without re-running.
type ExecError struct {
	Program          string
	Args             []string
	ExitCode         int
	Stdout           string
	Stderr           string
	Env              []string
	WorkingDirectory string
}

func (e *ExecError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "command (%s) failed with exit code (%d)", e.commandLine(), e.ExitCode)
	if e.WorkingDirectory != "" {
		fmt.Fprintf(&sb, "\ncwd: %s", e.WorkingDirectory)
	}
	if len(e.Env) > 0 {
		fmt.Fprintf(&sb, "\nenv: %s", strings.Join(e.Env, " "))
	}
	if e.Stdout != "" {
		fmt.Fprintf(&sb, "\nstdout:\n%s", e.Stdout)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&sb, "\nstderr:\n%s", e.Stderr)
	}
	return sb.String()
}

func (e *ExecError) commandLine() string {
	return strings.Join(append([]string{e.Program}, e.Args...), " ")
}

// ExecBuilder constructs a single external program invocation.
type ExecBuilder struct {
	program          string
	args             []string
	env              []string
	workingDirectory string
	useShell         bool
	acceptExitCodes  []int
}

func NewExecBuilder(program string, args ...string) ExecBuilder {
	return ExecBuilder{
		program:         program,
		args:            args,
		acceptExitCodes: []int{0},
	}
}

// Env replaces the environment of the program with exactly the given
// KEY=VALUE entries. Without it, the program inherits the process
// environment.
func (b ExecBuilder) Env(env []string) ExecBuilder {
	b.env = env
	return b
}

func (b ExecBuilder) WorkingDirectory(dir string) ExecBuilder {
	b.workingDirectory = dir
	return b
}

// Shell runs the command line through "sh -c" instead of executing the
// program directly. Needed for apt patterns like '^linux-.*' that must be
// interpreted by a shell.
func (b ExecBuilder) Shell() ExecBuilder {
	b.useShell = true
	return b
}

// AcceptExitCodes overrides the exit codes treated as success (default: 0).
func (b ExecBuilder) AcceptExitCodes(codes ...int) ExecBuilder {
	b.acceptExitCodes = codes
	return b
}

// Execute runs the program, discarding the captured output on success.
func (b ExecBuilder) Execute() error {
	_, _, err := b.ExecuteCaptureOutput()
	return err
}

// ExecuteCaptureOutput runs the program and returns the trimmed stdout and
// stderr. On an unacceptable exit code an *ExecError is returned.
func (b ExecBuilder) ExecuteCaptureOutput() (string, string, error) {
	var cmd *exec.Cmd
	if b.useShell {
		commandLine := strings.Join(append([]string{b.program}, b.args...), " ")
		cmd = exec.Command("sh", "-c", commandLine)
	} else {
		cmd = exec.Command(b.program, b.args...)
	}
	cmd.Env = b.env
	cmd.Dir = b.workingDirectory

	logger.Log.Debugf("Running command: %s", strings.Join(cmd.Args, " "))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	stdoutStr := strings.TrimSpace(stdout.String())
	stderrStr := strings.TrimSpace(stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return stdoutStr, stderrStr, fmt.Errorf("failed to run command (%s):\n%w", b.program, runErr)
		}

		exitCode := exitErr.ExitCode()
		if !acceptable(b.acceptExitCodes, exitCode) {
			execErr := &ExecError{
				Program:          b.program,
				Args:             b.args,
				ExitCode:         exitCode,
				Stdout:           stdoutStr,
				Stderr:           stderrStr,
				Env:              b.env,
				WorkingDirectory: b.workingDirectory,
			}
			logger.Log.Debugf("Command failed: %v", execErr)
			return stdoutStr, stderrStr, execErr
		}
	}

	logger.Log.Tracef("stdout:\n%s", stdoutStr)
	logger.Log.Tracef("stderr:\n%s", stderrStr)

	return stdoutStr, stderrStr, nil
}

// Execute runs a program with default settings and returns its output.
func Execute(program string, args ...string) (string, string, error) {
	return NewExecBuilder(program, args...).ExecuteCaptureOutput()
}

func acceptable(acceptExitCodes []int, exitCode int) bool {
	for _, code := range acceptExitCodes {
		if code == exitCode {
			return true
		}
	}
	return false
}
