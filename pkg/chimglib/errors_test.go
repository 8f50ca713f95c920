// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChimgErrorCategories(t *testing.T) {
	err := newResolutionError("expected exactly one .snap file")
	assert.ErrorIs(t, err, ErrResolution)
	assert.NotErrorIs(t, err, ErrExternalCommand)

	cause := fmt.Errorf("exit code 100")
	err = newExternalCommandError("apt-get update failed", cause)
	assert.ErrorIs(t, err, ErrExternalCommand)
	assert.ErrorIs(t, err, cause)

	err = newPreconditionError("output file already exists")
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestChimgErrorMessage(t *testing.T) {
	err := newResolutionError("no Linux root partition found")
	assert.Equal(t, "no Linux root partition found", err.Error())

	err = newExternalCommandError("apt-get update failed", fmt.Errorf("exit code 100"))
	assert.Contains(t, err.Error(), "apt-get update failed")
	assert.Contains(t, err.Error(), "exit code 100")
}

func TestChimgErrorCategorySurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("phase snaps_install failed:\n%w", newResolutionError("boom"))
	assert.ErrorIs(t, err, ErrResolution)

	var chimgErr *ChimgError
	assert.True(t, errors.As(err, &chimgErr))
	assert.Equal(t, "boom", chimgErr.Message)
}
