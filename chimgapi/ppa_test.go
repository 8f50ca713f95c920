// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"testing"

	"github.com/canonical/chimg/internal/ptrutils"
	"github.com/stretchr/testify/assert"
)

func validPPA() PPA {
	return PPA{
		Name:       "cloud-init-daily",
		URI:        "https://ppa.launchpadcontent.net/cloud-init-dev/daily/ubuntu",
		Suites:     []string{"noble"},
		Components: []string{"main"},
	}
}

func TestPPAIsValid(t *testing.T) {
	ppa := validPPA()

	err := ppa.IsValid()
	assert.NoError(t, err)
}

func TestPPAIsValidAllFields(t *testing.T) {
	ppa := validPPA()
	ppa.Fingerprint = "1FF0D8535EF7E719E5C81B9C083D06FBE4D304DF"
	ppa.Username = "user"
	ppa.Password = "secret"
	ppa.AuthLines = []string{"machine private.example.com login u password p"}
	ppa.PinName = "LP-PPA-cloud-init-dev-daily"
	ppa.PinPriority = ptrutils.PtrTo(1001)
	ppa.Keep = true

	err := ppa.IsValid()
	assert.NoError(t, err)
}

func TestPPAIsValidEmptyName(t *testing.T) {
	ppa := validPPA()
	ppa.Name = ""

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'name' may not be empty")
}

func TestPPAIsValidBadURI(t *testing.T) {
	ppa := validPPA()
	ppa.URI = "ppa.launchpadcontent.net/no/scheme"

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "not a valid URL")
}

func TestPPAIsValidEmptySuites(t *testing.T) {
	ppa := validPPA()
	ppa.Suites = nil

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'suites' may not be empty")
}

func TestPPAIsValidEmptyComponents(t *testing.T) {
	ppa := validPPA()
	ppa.Components = nil

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'components' may not be empty")
}

func TestPPAIsValidBadFingerprint(t *testing.T) {
	ppa := validPPA()
	ppa.Fingerprint = "not-hex"

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "fingerprint")
}

func TestPPAIsValidUsernameWithoutPassword(t *testing.T) {
	ppa := validPPA()
	ppa.Username = "user"

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'username' and 'password' must be provided together")
}

func TestPPAIsValidPasswordWithoutUsername(t *testing.T) {
	ppa := validPPA()
	ppa.Password = "secret"

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'username' and 'password' must be provided together")
}

func TestPPAIsValidPinNameWithoutPriority(t *testing.T) {
	ppa := validPPA()
	ppa.PinName = "LP-PPA-foo"

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'pin_name' and 'pin_priority' must be provided together")
}

func TestPPAIsValidPinPriorityWithoutName(t *testing.T) {
	ppa := validPPA()
	ppa.PinPriority = ptrutils.PtrTo(1001)

	err := ppa.IsValid()
	assert.ErrorContains(t, err, "'pin_name' and 'pin_priority' must be provided together")
}
