// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

// Package chimgapi contains the declarative configuration document consumed
// by chimg, along with its validation rules.
package chimgapi

import (
	"fmt"
	"path/filepath"

	"github.com/canonical/chimg/internal/file"
)

// Config is the top level configuration document.
type Config struct {
	// Kernel is the name of a kernel deb package that replaces the
	// currently installed kernel.
	Kernel string `yaml:"kernel" json:"kernel,omitempty"`
	// FS holds filesystem options used for bootloader root rewriting.
	FS *Filesystem `yaml:"fs" json:"fs,omitempty"`
	// PPAs are additional package repositories configured for the run.
	PPAs []PPA `yaml:"ppas" json:"ppas,omitempty"`
	// Debs are deb packages installed into the target filesystem.
	Debs []DebPackage `yaml:"debs" json:"debs,omitempty"`
	// Snap configures snap preseeding.
	Snap *Snap `yaml:"snap" json:"snap,omitempty"`
	// Files are files materialized in the target filesystem.
	Files []File `yaml:"files" json:"files,omitempty"`
	// CmdsPre run inside the chroot before any installation step.
	CmdsPre []Command `yaml:"cmds_pre" json:"cmds_pre,omitempty"`
	// CmdsPost run inside the chroot after all installation steps.
	CmdsPost []Command `yaml:"cmds_post" json:"cmds_post,omitempty"`
}

func (c *Config) IsValid() error {
	if c.FS != nil {
		err := c.FS.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'fs' field:\n%w", err)
		}
	}

	for i, ppa := range c.PPAs {
		err := ppa.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'ppas' item at index %d:\n%w", i, err)
		}
	}

	for i, deb := range c.Debs {
		err := deb.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'debs' item at index %d:\n%w", i, err)
		}
	}

	if c.Snap != nil {
		err := c.Snap.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'snap' field:\n%w", err)
		}
	}

	for i, f := range c.Files {
		err := f.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'files' item at index %d:\n%w", i, err)
		}
	}

	for i, cmd := range c.CmdsPre {
		err := cmd.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'cmds_pre' item at index %d:\n%w", i, err)
		}
	}

	for i, cmd := range c.CmdsPost {
		err := cmd.IsValid()
		if err != nil {
			return fmt.Errorf("invalid 'cmds_post' item at index %d:\n%w", i, err)
		}
	}

	return nil
}

// absolutePaths resolves the path-valued fields that may be relative to the
// configuration file's own directory.
func (c *Config) absolutePaths(baseDirPath string) {
	if c.Snap != nil && c.Snap.AAFeaturesPath != "" {
		c.Snap.AAFeaturesPath = file.GetAbsPathWithBase(baseDirPath, c.Snap.AAFeaturesPath)
	}

	for i := range c.Files {
		if c.Files[i].Source != "" {
			c.Files[i].Source = file.GetAbsPathWithBase(baseDirPath, c.Files[i].Source)
		}
	}
}

// LoadConfigFile reads, validates and path-resolves a configuration file.
func LoadConfigFile(configFilePath string) (*Config, error) {
	absConfigFilePath, err := filepath.Abs(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config file path (%s):\n%w", configFilePath, err)
	}

	config := &Config{}
	err = UnmarshalAndValidateYamlFile(absConfigFilePath, config)
	if err != nil {
		return nil, err
	}

	config.absolutePaths(filepath.Dir(absConfigFilePath))
	return config, nil
}
