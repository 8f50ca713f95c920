// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/logger"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	seedDir           = "var/lib/snapd/seed"
	seedAssertionsDir = "var/lib/snapd/seed/assertions"
	seedSnapsDir      = "var/lib/snapd/seed/snaps"
	seedYamlPath      = "var/lib/snapd/seed/seed.yaml"
)

// SeedSnap is one entry of the seed manifest consumed by snapd's preseeding
// tool.
type SeedSnap struct {
	Name    string `yaml:"name"`
	Channel string `yaml:"channel"`
	File    string `yaml:"file"`
	Classic bool   `yaml:"classic"`
}

// Seed is the durable manifest of snaps slated for preseeding.
type Seed struct {
	Snaps []SeedSnap `yaml:"snaps"`
}

// ReadSeedYaml reads the seed manifest below rootDir. A missing manifest
// yields an empty seed, so callers can merge unconditionally.
func ReadSeedYaml(rootDir string) (*Seed, error) {
	path := filepath.Join(rootDir, seedYamlPath)

	exists, err := file.PathExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Seed{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed manifest (%s):\n%w", path, err)
	}

	seed := &Seed{}
	err = yaml.Unmarshal(data, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed manifest (%s):\n%w", path, err)
	}
	return seed, nil
}

// Write persists the manifest below rootDir, replacing any prior content.
func (s *Seed) Write(rootDir string) error {
	return s.write(rootDir, logger.Log)
}

func (s *Seed) write(rootDir string, log logrus.FieldLogger) error {
	path := filepath.Join(rootDir, seedYamlPath)

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal seed manifest:\n%w", err)
	}

	err = file.Write(string(data), path)
	if err != nil {
		return err
	}

	log.Infof("seed.yaml file written to %s", path)
	return nil
}

// Contains reports whether the manifest already lists the snap name.
func (s *Seed) Contains(name string) bool {
	for _, sn := range s.Snaps {
		if sn.Name == name {
			return true
		}
	}
	return false
}

// writeSeedYaml regenerates the manifest from the complete resolved snap
// set of this run (the batch rewrite policy). Entries are sorted by name so
// repeated runs produce identical files.
func writeSeedYaml(rootDir string, snapInfos map[string]*SnapInfo, log logrus.FieldLogger) error {
	names := make([]string, 0, len(snapInfos))
	for name := range snapInfos {
		names = append(names, name)
	}
	sort.Strings(names)

	seed := &Seed{}
	for _, name := range names {
		si := snapInfos[name]
		seed.Snaps = append(seed.Snaps, SeedSnap{
			Name:    si.Name,
			Channel: si.Channel,
			File:    si.Filename,
			Classic: si.Classic,
		})
	}
	return seed.write(rootDir, log)
}

// AppendSeedYaml merges a single snap into an existing manifest (the
// incremental policy, for callers adding snaps to an already seeded
// filesystem). A snap already listed is skipped with a warning, never
// duplicated.
func AppendSeedYaml(rootDir string, si *SnapInfo) error {
	return appendSeedYaml(rootDir, si, logger.Log)
}

func appendSeedYaml(rootDir string, si *SnapInfo, log logrus.FieldLogger) error {
	seed, err := ReadSeedYaml(rootDir)
	if err != nil {
		return err
	}

	if seed.Contains(si.Name) {
		log.Warnf("snap %s is already listed in the seed manifest, skipping", si.Name)
		return nil
	}

	seed.Snaps = append(seed.Snaps, SeedSnap{
		Name:    si.Name,
		Channel: si.Channel,
		File:    si.Filename,
		Classic: si.Classic,
	})
	return seed.write(rootDir, log)
}
