// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

// Package chimglib mutates a Linux root filesystem (a chroot directory or a
// mounted image) according to a declarative configuration: deb and kernel
// package installation, PPA setup, snap preseeding, file installation and
// arbitrary pre/post commands, with all the mounts, diversions and policy
// files needed to make package managers behave inside a non-booted
// filesystem.
package chimglib

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/canonical/chimg/chimgapi"
	"github.com/canonical/chimg/internal/logger"
	"github.com/canonical/chimg/internal/safemount"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sys/unix"
)

const OtelTracerName = "chimg"

// Chroot applies a configuration to a target root filesystem.
type Chroot struct {
	config  *chimgapi.Config
	rootDir string
	log     logrus.FieldLogger
}

// NewChroot returns a Chroot operating on rootDir. rootDir must be the
// absolute path of the target filesystem's root.
func NewChroot(config *chimgapi.Config, rootDir string) *Chroot {
	return NewChrootWithLogger(config, rootDir, logger.Log)
}

// NewChrootWithLogger is NewChroot with a caller-provided logger, for
// embedders that route engine output into their own logging setup.
func NewChrootWithLogger(config *chimgapi.Config, rootDir string, log logrus.FieldLogger) *Chroot {
	return &Chroot{
		config:  config,
		rootDir: rootDir,
		log:     log,
	}
}

// RootDir returns the target filesystem's root path.
func (c *Chroot) RootDir() string {
	return c.rootDir
}

type chrootMount struct {
	source string
	target string
	fstype string
	flags  uintptr
}

// The mount set package managers and snap tooling expect inside the chroot.
// tmpfs over /tmp and the apt state directories keeps scratch data out of
// the final image.
var chrootMounts = []chrootMount{
	{"dev-live", "/dev", "devtmpfs", 0},
	{"devpts-live", "/dev/pts", "devpts", unix.MS_NOSUID | unix.MS_NODEV},
	{"proc-live", "/proc", "proc", 0},
	{"sysfs-live", "/sys", "sysfs", 0},
	{"securityfs", "/sys/kernel/security", "securityfs", 0},
	{"none", "/sys/fs/cgroup", "cgroup2", 0},
	{"none", "/tmp", "tmpfs", 0},
	{"none", "/var/lib/apt/lists", "tmpfs", 0},
	{"none", "/var/cache/apt", "tmpfs", 0},
}

func (c *Chroot) enterMounts(stack *guardStack) error {
	c.log.Info("Setup mount points ...")
	for _, m := range chrootMounts {
		mount, err := safemount.NewMount(m.source, filepath.Join(c.rootDir, m.target), m.fstype, m.flags, "")
		if err != nil {
			return fmt.Errorf("failed to mount (%s):\n%w", m.target, err)
		}
		stack.push("mount "+m.target, mount.CleanClose)
	}
	c.log.Info("mount points setup done")
	return nil
}

// Apply mutates the target filesystem: it acquires the mount, policy,
// repository and diversion guards in order, runs the installation phases,
// and releases the guards in reverse order, also on failure.
func (c *Chroot) Apply(ctx context.Context) (err error) {
	stack := newGuardStack(c.log)
	defer func() {
		unwindErr := stack.unwind()
		if err == nil {
			err = unwindErr
		} else if unwindErr != nil {
			c.log.Warnf("Guard teardown after failure also failed: %v", unwindErr)
		}
	}()

	err = c.enterMounts(stack)
	if err != nil {
		return err
	}
	err = c.enterPolicyRC(stack)
	if err != nil {
		return err
	}
	err = c.enterPPAs(ctx, stack)
	if err != nil {
		return err
	}
	err = c.enterGrubDiversions(stack)
	if err != nil {
		return err
	}

	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{"cmds_pre", c.cmdsPre},
		{"kernel_install", c.kernelInstall},
		{"debs_install", c.debsInstall},
		{"files_install", c.filesInstall},
		{"snap_assertions_install", c.snapAssertionsInstall},
		{"snaps_install", c.snapsInstall},
		{"snap_preseed", c.snapPreseed},
		{"cmds_post", c.cmdsPost},
	}
	for _, phase := range phases {
		err = c.runPhase(ctx, phase.name, phase.run)
		if err != nil {
			return err
		}
	}

	c.log.Info("Chroot changes applied. cleaning up ...")
	return nil
}

func (c *Chroot) runPhase(ctx context.Context, name string, run func(context.Context) error) error {
	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, name)
	defer span.End()

	err := run(ctx)
	if err != nil {
		return fmt.Errorf("phase %s failed:\n%w", name, err)
	}
	return nil
}
