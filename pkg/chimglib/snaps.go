// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/safemount"
	"github.com/canonical/chimg/internal/shell"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// SnapInfo describes one snap resolved into the target filesystem.
type SnapInfo struct {
	Name     string
	Filename string
	Channel  string
	Classic  bool
	// Info is the metadata record reported by `snap info --verbose` for
	// the downloaded artifact.
	Info map[string]any
}

// Base returns the snap's declared base snap, defaulting to "core".
func (si *SnapInfo) Base() string {
	base, ok := si.Info["base"].(string)
	if !ok || base == "" {
		return "core"
	}
	return base
}

// core and core<NN> are self-contained and have no base of their own.
var coreSnapPattern = regexp.MustCompile(`^core(\d\d)?$`)

// requiredBaseSnaps returns the distinct bases needed by the resolved snap
// set that are not themselves part of it. snapd and the core snaps are
// self-contained; explicitly requested snaps always take priority over an
// implicit base of the same name.
func requiredBaseSnaps(snapInfos map[string]*SnapInfo) []string {
	required := map[string]bool{}
	for name, si := range snapInfos {
		if name == "snapd" {
			continue
		}
		if coreSnapPattern.MatchString(name) {
			continue
		}

		base := si.Base()
		if _, ok := snapInfos[base]; ok {
			// the base got already explicitly installed
			continue
		}
		required[base] = true
	}

	bases := make([]string, 0, len(required))
	for base := range required {
		bases = append(bases, base)
	}
	sort.Strings(bases)
	return bases
}

// snapsInstall downloads all configured snaps plus their base dependencies
// plus snapd, and records the complete set in the seed manifest.
func (c *Chroot) snapsInstall(ctx context.Context) error {
	if c.config.Snap == nil {
		return nil
	}

	c.log.Info("Installing snaps ...")

	snapInfos := map[string]*SnapInfo{}
	for _, sn := range c.config.Snap.Snaps {
		si, err := c.snapInstall(sn.Name, sn.Channel, sn.Classic, sn.Revision)
		if err != nil {
			return err
		}
		snapInfos[sn.Name] = si
	}

	// Bases are resolved in a second pass over the complete primary set so
	// that an explicit request for a base is never downloaded twice.
	for _, base := range requiredBaseSnaps(snapInfos) {
		si, err := c.snapInstall(base, "stable", false, "")
		if err != nil {
			return err
		}
		snapInfos[base] = si
	}

	if _, ok := snapInfos["snapd"]; !ok {
		si, err := c.snapInstall("snapd", "stable", false, "")
		if err != nil {
			return err
		}
		snapInfos["snapd"] = si
	}

	err := writeSeedYaml(c.rootDir, snapInfos, c.log)
	if err != nil {
		return err
	}

	c.log.Info("Snaps installed")
	return nil
}

// snapInstall downloads a single snap with its assertion file and moves
// both into the seed directories.
func (c *Chroot) snapInstall(name, channel string, classic bool, revision string) (*SnapInfo, error) {
	err := os.MkdirAll(filepath.Join(c.rootDir, seedAssertionsDir), os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create assertions directory:\n%w", err)
	}
	err = os.MkdirAll(filepath.Join(c.rootDir, seedSnapsDir), os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create snaps directory:\n%w", err)
	}

	arch, _, err := shell.Execute("dpkg", "--print-architecture")
	if err != nil {
		return nil, newExternalCommandError("failed to query dpkg architecture", err)
	}

	scratchDir, err := os.MkdirTemp("", "chimg_")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory:\n%w", err)
	}
	defer os.RemoveAll(scratchDir)

	args := []string{"download", "--target-directory=" + scratchDir, "--channel=" + channel}
	if revision != "" {
		args = append(args, "--revision", revision)
	}
	args = append(args, name)

	_, _, err = shell.NewExecBuilder("snap", args...).
		Env([]string{"UBUNTU_STORE_ARCH=" + arch, "SNAPPY_STORE_NO_CDN=1", "PATH=/usr/bin"}).
		ExecuteCaptureOutput()
	if err != nil {
		return nil, newExternalCommandError(fmt.Sprintf("failed to download snap (%s)", name), err)
	}

	assertionFile, err := soleMatch(scratchDir, "*.assert", name)
	if err != nil {
		return nil, err
	}
	snapFile, err := soleMatch(scratchDir, "*.snap", name)
	if err != nil {
		return nil, err
	}

	info, err := snapInfo(snapFile)
	if err != nil {
		return nil, err
	}

	err = file.Move(assertionFile, filepath.Join(c.rootDir, seedAssertionsDir, filepath.Base(assertionFile)))
	if err != nil {
		return nil, err
	}
	err = file.Move(snapFile, filepath.Join(c.rootDir, seedSnapsDir, filepath.Base(snapFile)))
	if err != nil {
		return nil, err
	}

	return &SnapInfo{
		Name:     name,
		Filename: filepath.Base(snapFile),
		Channel:  channel,
		Classic:  classic,
		Info:     info,
	}, nil
}

// soleMatch returns the single file in dir matching pattern. Zero or
// multiple matches indicate an ambiguous or corrupted download.
func soleMatch(dir, pattern, snapName string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", newResolutionError(
			fmt.Sprintf("expected exactly one %s file for snap %s, found %d", pattern, snapName, len(matches)))
	}
	return matches[0], nil
}

// snapInfo queries the metadata of a downloaded .snap file. This must be
// done from the downloaded artifact given that the store API doesn't
// support channel and revision.
func snapInfo(snapFilePath string) (map[string]any, error) {
	out, _, err := shell.Execute("snap", "info", "--verbose", snapFilePath)
	if err != nil {
		return nil, newExternalCommandError(fmt.Sprintf("failed to query snap info of (%s)", snapFilePath), err)
	}

	info := map[string]any{}
	err = yaml.Unmarshal([]byte(out), &info)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snap info output:\n%w", err)
	}
	return info, nil
}

// snapPreseed validates the seed manifest and runs snapd's preseeding tool,
// then rebuilds the apparmor profile cache. When an apparmor feature
// directory is configured it is bind mounted over the chroot's securityfs
// feature path, so profile compilation observes the target kernel's
// features instead of the host's.
func (c *Chroot) snapPreseed(ctx context.Context) error {
	seedYaml := filepath.Join(c.rootDir, seedYamlPath)
	exists, err := file.PathExists(seedYaml)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	_, _, err = shell.Execute("snap", "debug", "validate-seed", seedYaml)
	if err != nil {
		return newExternalCommandError("seed manifest failed validation", err)
	}

	realRoot, err := filepath.EvalSymlinks(c.rootDir)
	if err != nil {
		return fmt.Errorf("failed to resolve target filesystem path:\n%w", err)
	}

	_, _, err = shell.Execute("/usr/lib/snapd/snap-preseed", "--reset", realRoot)
	if err != nil {
		return newExternalCommandError("failed to reset preseeding state", err)
	}

	_, _, err = shell.NewExecBuilder("/usr/lib/snapd/snap-preseed", realRoot).
		Env([]string{"PATH=/usr/bin"}).
		ExecuteCaptureOutput()
	if err != nil {
		return newExternalCommandError("snap preseeding failed", err)
	}

	if c.config.Snap == nil {
		return nil
	}
	return c.rebuildApparmorCache()
}

func (c *Chroot) rebuildApparmorCache() error {
	run := func() error {
		_, _, err := shell.Execute("chroot", c.rootDir,
			"apparmor_parser", "--skip-read-cache", "--write-cache", "--skip-kernel-load",
			"--verbose", "-j", strconv.Itoa(runtime.NumCPU()), "/etc/apparmor.d")
		if err != nil {
			return newExternalCommandError("failed to rebuild apparmor profile cache", err)
		}
		return nil
	}

	if c.config.Snap.AAFeaturesPath == "" {
		return run()
	}

	target := filepath.Join(c.rootDir, "sys/kernel/security/apparmor/features/")
	mount, err := safemount.NewMount(c.config.Snap.AAFeaturesPath, target, "", unix.MS_BIND, "")
	if err != nil {
		return err
	}
	defer mount.Close()

	err = run()
	if err != nil {
		return err
	}
	return mount.CleanClose()
}
