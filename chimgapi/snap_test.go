// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapIsValid(t *testing.T) {
	snap := Snap{
		AssertionBrand: "canonical",
		AssertionModel: "ubuntu-core-24-amd64",
		Snaps: []SnapPackage{
			{Name: "hello", Channel: "latest/stable"},
			{Name: "core24", Channel: "stable", Revision: "609"},
		},
	}

	err := snap.IsValid()
	assert.NoError(t, err)
}

func TestSnapIsValidMissingBrand(t *testing.T) {
	snap := Snap{
		AssertionModel: "ubuntu-core-24-amd64",
	}

	err := snap.IsValid()
	assert.ErrorContains(t, err, "'assertion_brand' may not be empty")
}

func TestSnapIsValidMissingModel(t *testing.T) {
	snap := Snap{
		AssertionBrand: "canonical",
	}

	err := snap.IsValid()
	assert.ErrorContains(t, err, "'assertion_model' may not be empty")
}

func TestSnapIsValidSnapMissingChannel(t *testing.T) {
	snap := Snap{
		AssertionBrand: "canonical",
		AssertionModel: "ubuntu-core-24-amd64",
		Snaps: []SnapPackage{
			{Name: "hello"},
		},
	}

	err := snap.IsValid()
	assert.ErrorContains(t, err, "invalid 'snaps' item at index 0")
}
