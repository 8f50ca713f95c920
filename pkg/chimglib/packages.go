// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/canonical/chimg/chimgapi"
	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/shell"
)

var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

const forcePartuuidPath = "etc/default/grub.d/40-force-partuuid.cfg"

// aptUpdate refreshes the package index inside the chroot.
func (c *Chroot) aptUpdate() error {
	_, _, err := shell.NewExecBuilder("/usr/sbin/chroot", c.rootDir,
		"apt-get", "update", "--assume-yes", "--error-on=any").
		Env(aptEnv).
		ExecuteCaptureOutput()
	if err != nil {
		return newExternalCommandError("failed to update package index", err)
	}
	return nil
}

func (c *Chroot) debsInstall(ctx context.Context) error {
	if len(c.config.Debs) == 0 {
		return nil
	}

	c.log.Info("Installing deb packages ...")
	for _, deb := range c.config.Debs {
		err := c.debInstall(deb)
		if err != nil {
			return err
		}
	}
	c.log.Info("Deb packages installed")
	return nil
}

// debInstall installs a single deb package and optionally marks it held.
func (c *Chroot) debInstall(deb chimgapi.DebPackage) error {
	_, _, err := shell.NewExecBuilder("/usr/sbin/chroot", c.rootDir,
		"apt-get", "install", "--assume-yes", "--allow-downgrades", deb.Name).
		Env(aptEnv).
		ExecuteCaptureOutput()
	if err != nil {
		return newExternalCommandError(fmt.Sprintf("failed to install package (%s)", deb.Name), err)
	}

	if deb.Hold {
		_, _, err = shell.NewExecBuilder("/usr/sbin/chroot", c.rootDir,
			"apt-mark", "hold", deb.Name).
			Env(aptEnv).
			ExecuteCaptureOutput()
		if err != nil {
			return newExternalCommandError(fmt.Sprintf("failed to hold package (%s)", deb.Name), err)
		}
	}
	return nil
}

// kernelInstall swaps the installed kernel for the configured kernel
// package: purge every kernel package, install the new one, then force an
// initramfs-less boot path when a stable partition identity exists.
func (c *Chroot) kernelInstall(ctx context.Context) error {
	if c.config.Kernel == "" {
		c.log.Info("No kernel configured")
		return nil
	}

	c.log.Info("Installing kernel ...")

	// The package patterns have to reach apt unexpanded, so this runs
	// through a shell.
	_, _, err := shell.NewExecBuilder("/usr/sbin/chroot", c.rootDir,
		"apt-get", "remove", "--purge", "--assume-yes", "--allow-change-held-packages",
		"'^linux-.*'", "linux-base+").
		Env(aptEnv).
		Shell().
		ExecuteCaptureOutput()
	if err != nil {
		return newExternalCommandError("failed to purge installed kernel packages", err)
	}

	err = c.aptUpdate()
	if err != nil {
		return err
	}

	_, _, err = shell.NewExecBuilder("/usr/sbin/chroot", c.rootDir,
		"apt-get", "install", "--assume-yes", c.config.Kernel).
		Env(aptEnv).
		ExecuteCaptureOutput()
	if err != nil {
		return newExternalCommandError(fmt.Sprintf("failed to install kernel (%s)", c.config.Kernel), err)
	}

	c.log.Info("Kernel installed")

	err = c.kernelBootWithoutInitramfs()
	if err != nil {
		return err
	}

	return c.grubReplaceRootWithLabel()
}

// kernelBootWithoutInitramfs writes a grub fragment forcing boot without an
// initramfs, keyed on the partition UUID backing the target filesystem. A
// target without a discoverable partition identity is a skip, not a failure.
func (c *Chroot) kernelBootWithoutInitramfs() error {
	device, _, err := shell.Execute("findmnt", "-n", "-o", "SOURCE", "--target", c.rootDir)
	if err != nil {
		return newExternalCommandError("failed to find the device backing the target filesystem", err)
	}

	// blkid exits 2 when the device has no PARTUUID; that is the skip case,
	// not a failure.
	partuuid, _, err := shell.NewExecBuilder("blkid", "-s", "PARTUUID", "-o", "value", device).
		AcceptExitCodes(0, 2).
		ExecuteCaptureOutput()
	if err != nil {
		return newExternalCommandError(fmt.Sprintf("failed to query PARTUUID of (%s)", device), err)
	}
	if partuuid == "" {
		c.log.Infof("No PARTUUID for (%s), leaving initramfs boot path in place", device)
		return nil
	}

	c.log.Infof("Force booting without initramfs with PARTUUID=%s ...", partuuid)

	fragment := fmt.Sprintf(`
# Force boot without an initramfs by setting GRUB_FORCE_PARTUUID
# Remove this line to enable boot with an initramfs
GRUB_FORCE_PARTUUID=%s`, partuuid)

	err = file.Write(fragment, filepath.Join(c.rootDir, forcePartuuidPath))
	if err != nil {
		return fmt.Errorf("failed to write force-partuuid fragment:\n%w", err)
	}

	_, _, err = shell.Execute("chroot", c.rootDir, "update-grub")
	if err != nil {
		return newExternalCommandError("failed to regenerate grub configuration", err)
	}
	return nil
}

// grubReplaceRootWithLabel rewrites the root= kernel command line reference
// in the generated grub configuration to use the configured filesystem
// label. Partition UUIDs are not stable across the image copy this tool is
// typically used for; labels are. Skipped when the force-partuuid fragment
// was written, which already pins the root device.
func (c *Chroot) grubReplaceRootWithLabel() error {
	fragmentExists, err := file.PathExists(filepath.Join(c.rootDir, forcePartuuidPath))
	if err != nil {
		return err
	}
	if fragmentExists {
		return nil
	}

	if c.config.FS == nil {
		c.log.Info("No filesystem configured")
		return nil
	}

	grubCfgPath := filepath.Join(c.rootDir, "boot/grub/grub.cfg")
	grubCfgExists, err := file.PathExists(grubCfgPath)
	if err != nil {
		return err
	}
	if !grubCfgExists {
		return nil
	}

	expr := fmt.Sprintf("s,root=[^ ]*,root=LABEL=%s,", c.config.FS.RootFSLabel)
	_, _, err = shell.Execute("sed", "-i", "-e", expr, grubCfgPath)
	if err != nil {
		return newExternalCommandError("failed to rewrite grub root reference", err)
	}
	return nil
}
