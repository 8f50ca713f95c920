// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"fmt"
)

// DebPackage describes a deb package to install.
type DebPackage struct {
	Name string `yaml:"name" json:"name"`
	// Hold marks the package as held back from future upgrades.
	Hold bool `yaml:"hold" json:"hold,omitempty"`
}

func (d *DebPackage) IsValid() error {
	if d.Name == "" {
		return fmt.Errorf("'name' may not be empty")
	}
	return nil
}
