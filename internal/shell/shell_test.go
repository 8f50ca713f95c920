// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package shell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	stdout, stderr, err := Execute("sh", "-c", "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello", stdout)
	assert.Equal(t, "oops", stderr)
}

func TestExecuteFailure(t *testing.T) {
	stdout, _, err := Execute("sh", "-c", "echo partial; exit 3")
	assert.Equal(t, "partial", stdout)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "sh", execErr.Program)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, "partial", execErr.Stdout)
	assert.Contains(t, execErr.Error(), "exit code (3)")
}

func TestExecuteMissingProgram(t *testing.T) {
	_, _, err := Execute("this-program-does-not-exist")
	require.Error(t, err)

	var execErr *ExecError
	assert.False(t, errors.As(err, &execErr))
}

func TestAcceptExitCodes(t *testing.T) {
	err := NewExecBuilder("sh", "-c", "exit 2").
		AcceptExitCodes(0, 2).
		Execute()
	assert.NoError(t, err)

	err = NewExecBuilder("sh", "-c", "exit 1").
		AcceptExitCodes(0, 2).
		Execute()
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	// The pattern must reach the shell unexpanded and be interpreted there.
	stdout, _, err := NewExecBuilder("echo", "a*b").
		Shell().
		ExecuteCaptureOutput()
	require.NoError(t, err)
	assert.Equal(t, "a*b", stdout)
}

func TestEnv(t *testing.T) {
	stdout, _, err := NewExecBuilder("sh", "-c", "echo $CHIMG_TEST_VAR").
		Env([]string{"CHIMG_TEST_VAR=seen"}).
		ExecuteCaptureOutput()
	require.NoError(t, err)
	assert.Equal(t, "seen", stdout)
}

func TestEnvReplacesEnvironment(t *testing.T) {
	t.Setenv("CHIMG_INHERITED_VAR", "inherited")

	stdout, _, err := NewExecBuilder("sh", "-c", "echo [$CHIMG_INHERITED_VAR]").
		Env([]string{"PATH=/usr/bin:/bin"}).
		ExecuteCaptureOutput()
	require.NoError(t, err)
	assert.Equal(t, "[]", stdout)
}

func TestWorkingDirectory(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := NewExecBuilder("pwd").
		WorkingDirectory(dir).
		ExecuteCaptureOutput()
	require.NoError(t, err)
	assert.Equal(t, dir, stdout)
}
