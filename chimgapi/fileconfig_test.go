// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileIsValidContent(t *testing.T) {
	f := File{
		Destination: "/etc/motd",
		Content:     "welcome\n",
	}

	err := f.IsValid()
	assert.NoError(t, err)
}

func TestFileIsValidSource(t *testing.T) {
	f := File{
		Destination: "/etc/cloud/cloud.cfg.d",
		Source:      "cloud.cfg.d",
	}

	err := f.IsValid()
	assert.NoError(t, err)
}

func TestFileIsValidEmptyDestination(t *testing.T) {
	f := File{
		Content: "welcome\n",
	}

	err := f.IsValid()
	assert.ErrorContains(t, err, "'destination' may not be empty")
}

func TestFileIsValidContentAndSource(t *testing.T) {
	f := File{
		Destination: "/etc/motd",
		Content:     "welcome\n",
		Source:      "motd",
	}

	err := f.IsValid()
	assert.ErrorContains(t, err, "exactly one of 'content' and 'source'")
}

func TestFileIsValidNeitherContentNorSource(t *testing.T) {
	f := File{
		Destination: "/etc/motd",
	}

	err := f.IsValid()
	assert.ErrorContains(t, err, "exactly one of 'content' and 'source'")
}
