// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"fmt"

	"github.com/asaskevich/govalidator"
)

// PPA describes an additional package repository configured for the
// duration of the run (or permanently, with Keep).
type PPA struct {
	// Name is used for the per-repository file names under etc/apt.
	Name string `yaml:"name" json:"name"`
	// URI of the repository.
	URI string `yaml:"uri" json:"uri"`
	// Suites of the repository (e.g. "noble").
	Suites []string `yaml:"suites" json:"suites"`
	// Components of the repository (e.g. "main").
	Components []string `yaml:"components" json:"components"`
	// Keep leaves the repository configured after the run.
	Keep bool `yaml:"keep" json:"keep"`
	// Fingerprint of the signing key, fetched from the keyserver.
	Fingerprint string `yaml:"fingerprint" json:"fingerprint,omitempty"`
	// SignedBy is the path of a key file already present in the target.
	// Mutually exclusive with Fingerprint (Fingerprint wins).
	SignedBy string `yaml:"signed_by" json:"signed_by,omitempty"`
	// Username for repository authentication.
	Username string `yaml:"username" json:"username,omitempty"`
	// Password for repository authentication.
	Password string `yaml:"password" json:"password,omitempty"`
	// AuthLines are raw lines appended to the repository's auth.conf.d file.
	AuthLines []string `yaml:"auth_lines" json:"auth_lines,omitempty"`
	// PinName is the release origin used for apt pinning.
	PinName string `yaml:"pin_name" json:"pin_name,omitempty"`
	// PinPriority is the apt pin priority.
	PinPriority *int `yaml:"pin_priority" json:"pin_priority,omitempty"`
}

func (p *PPA) IsValid() error {
	if p.Name == "" {
		return fmt.Errorf("'name' may not be empty")
	}

	if !govalidator.IsRequestURL(p.URI) {
		return fmt.Errorf("'uri' (%s) is not a valid URL", p.URI)
	}

	if len(p.Suites) == 0 {
		return fmt.Errorf("'suites' may not be empty")
	}

	if len(p.Components) == 0 {
		return fmt.Errorf("'components' may not be empty")
	}

	if p.Fingerprint != "" && !govalidator.IsHexadecimal(p.Fingerprint) {
		return fmt.Errorf("'fingerprint' (%s) is not a hexadecimal key fingerprint", p.Fingerprint)
	}

	if (p.Username == "") != (p.Password == "") {
		return fmt.Errorf("'username' and 'password' must be provided together")
	}

	if (p.PinName == "") != (p.PinPriority == nil) {
		return fmt.Errorf("'pin_name' and 'pin_priority' must be provided together")
	}

	return nil
}
