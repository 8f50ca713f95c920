// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/shell"
	"github.com/sirupsen/logrus"
)

// guardStack collects teardown actions for environment preparations. Guards
// are pushed in setup order and released in strict reverse order, whether the
// run succeeded or failed.
type guardStack struct {
	guards []guard
	log    logrus.FieldLogger
}

type guard struct {
	name    string
	release func() error
}

func newGuardStack(log logrus.FieldLogger) *guardStack {
	return &guardStack{log: log}
}

func (s *guardStack) push(name string, release func() error) {
	s.guards = append(s.guards, guard{name: name, release: release})
}

// unwind releases all guards in reverse order. Every release is attempted
// even when an earlier one fails.
func (s *guardStack) unwind() error {
	var errs []error
	for i := len(s.guards) - 1; i >= 0; i-- {
		g := s.guards[i]
		err := g.release()
		if err != nil {
			s.log.Warnf("Teardown of %s failed: %v", g.name, err)
			errs = append(errs, fmt.Errorf("teardown of %s failed:\n%w", g.name, err))
		}
	}
	s.guards = nil
	return errors.Join(errs...)
}

type guardStep struct {
	name    string
	enter   func() error
	release func() error
}

// enterAll runs the steps in order, pushing each step's release as soon as
// its enter succeeds. A mid-sequence failure leaves exactly the completed
// steps on the stack, so partial setups unwind cleanly.
func (s *guardStack) enterAll(steps []guardStep) error {
	for _, step := range steps {
		err := step.enter()
		if err != nil {
			return err
		}
		s.push(step.name, step.release)
	}
	return nil
}

const policyRC = `#!/bin/sh
echo "All runlevel operations denied by policy" >&2
exit 101
`

// enterPolicyRC writes a policy-rc.d script denying all runlevel operations,
// so package installation inside the unbooted filesystem cannot start or
// stop real services. A policy-rc.d the target already carries is left
// untouched, both now and during teardown.
func (c *Chroot) enterPolicyRC(stack *guardStack) error {
	policyRCPath := filepath.Join(c.rootDir, "usr/sbin/policy-rc.d")

	exists, err := file.PathExists(policyRCPath)
	if err != nil {
		return err
	}
	if exists {
		stack.push("policy-rc.d", func() error { return nil })
		return nil
	}

	c.log.Info("Disabling runlevel operations ...")
	err = file.WriteWithPerm(policyRC, policyRCPath, 0o755)
	if err != nil {
		return fmt.Errorf("failed to write policy-rc.d:\n%w", err)
	}

	stack.push("policy-rc.d", func() error {
		err := os.Remove(policyRCPath)
		if err != nil {
			return err
		}
		c.log.Info("Runlevel operations reenabled")
		return nil
	})
	return nil
}

const detectVirtStub = `#!/bin/sh
exit 1
`

// enterGrubDiversions redirects the grub scripts that must not run while a
// replacement kernel is installed. Don't divert all of grub-probe here; just
// the scripts we don't want running. Otherwise, you may be missing part-uuids
// for the search command, for example.
func (c *Chroot) enterGrubDiversions(stack *guardStack) error {
	c.log.Info("Adding grub diversions ...")

	detectVirtPath := filepath.Join(c.rootDir, "usr/bin/systemd-detect-virt")

	// Each step pushes its own release, so a failure partway through
	// leaves only the diversions actually applied to be reverted.
	steps := []guardStep{
		{
			name: "os-prober diversion",
			enter: func() error {
				_, _, err := shell.Execute("chroot", c.rootDir, "dpkg-divert",
					"--local", "--divert", "/etc/grub.d/30_os-prober.dpkg-divert",
					"--rename", "/etc/grub.d/30_os-prober")
				if err != nil {
					return newExternalCommandError("failed to divert os-prober", err)
				}
				return nil
			},
			release: func() error {
				_, _, err := shell.Execute("chroot", c.rootDir, "dpkg-divert",
					"--remove", "--local", "--divert", "/etc/grub.d/30_os-prober.dpkg-divert",
					"--rename", "/etc/grub.d/30_os-prober")
				if err != nil {
					return newExternalCommandError("failed to revert os-prober diversion", err)
				}
				c.log.Info("grub diversions removed")
				return nil
			},
		},
		{
			// /etc/kernel/postinst.d/zz-update-grub no-ops when it
			// believes it runs in a container, and build farms often
			// do. Replace systemd-detect-virt with a stub that always
			// reports a physical machine (exit 1).
			name: "systemd-detect-virt diversion",
			enter: func() error {
				_, _, err := shell.Execute("chroot", c.rootDir, "dpkg-divert",
					"--local", "--rename", "/usr/bin/systemd-detect-virt")
				if err != nil {
					return newExternalCommandError("failed to divert systemd-detect-virt", err)
				}
				return nil
			},
			release: func() error {
				_, _, err := shell.Execute("chroot", c.rootDir, "dpkg-divert",
					"--remove", "--local", "--rename", "/usr/bin/systemd-detect-virt")
				if err != nil {
					return newExternalCommandError("failed to revert systemd-detect-virt diversion", err)
				}
				return nil
			},
		},
		{
			name: "systemd-detect-virt stub",
			enter: func() error {
				err := file.WriteWithPerm(detectVirtStub, detectVirtPath, 0o755)
				if err != nil {
					return fmt.Errorf("failed to write systemd-detect-virt stub:\n%w", err)
				}
				return nil
			},
			release: func() error {
				c.log.Info("Removing grub diversions ...")
				return os.Remove(detectVirtPath)
			},
		},
	}

	err := stack.enterAll(steps)
	if err != nil {
		return err
	}

	c.log.Info("grub diversions added")
	return nil
}
