// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"fmt"
)

// Snap holds the general snap configuration required for preseeding.
type Snap struct {
	// AssertionBrand is the brand-id used to fetch the model assertion.
	AssertionBrand string `yaml:"assertion_brand" json:"assertion_brand"`
	// AssertionModel is the model used to fetch the model assertion.
	AssertionModel string `yaml:"assertion_model" json:"assertion_model"`
	// AAFeaturesPath is an apparmor feature directory matching the target's
	// kernel; bind mounted during preseeding so profile compilation sees the
	// right kernel features. Relative paths are resolved against the config
	// file's directory.
	AAFeaturesPath string `yaml:"aa_features_path" json:"aa_features_path,omitempty"`
	// Snaps are the snap packages to preseed.
	Snaps []SnapPackage `yaml:"snaps" json:"snaps"`
}

func (s *Snap) IsValid() error {
	if s.AssertionBrand == "" {
		return fmt.Errorf("'assertion_brand' may not be empty")
	}

	if s.AssertionModel == "" {
		return fmt.Errorf("'assertion_model' may not be empty")
	}

	for i, sn := range s.Snaps {
		err := sn.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'snaps' item at index %d:\n%w", i, err)
		}
	}

	return nil
}

// SnapPackage describes a single snap package to preseed.
type SnapPackage struct {
	Name string `yaml:"name" json:"name"`
	// Channel the snap is downloaded from (e.g. "latest/stable").
	Channel string `yaml:"channel" json:"channel"`
	// Classic marks the snap as using classic confinement.
	Classic bool `yaml:"classic" json:"classic,omitempty"`
	// Revision pins the download to a fixed store revision.
	Revision string `yaml:"revision" json:"revision,omitempty"`
}

func (s *SnapPackage) IsValid() error {
	if s.Name == "" {
		return fmt.Errorf("'name' may not be empty")
	}

	if s.Channel == "" {
		return fmt.Errorf("'channel' may not be empty")
	}

	return nil
}
