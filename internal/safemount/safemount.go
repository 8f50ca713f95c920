// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

// Package safemount wraps mount(2) in a guard that only mounts when the
// target is not already a mountpoint and only unmounts what it mounted, so a
// chroot that already has (say) /proc mounted is left exactly as found.
package safemount

import (
	"fmt"
	"os"

	"github.com/canonical/chimg/internal/logger"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

type Mount struct {
	source    string
	target    string
	fstype    string
	flags     uintptr
	data      string
	isMounted bool
}

// NewMount mounts source at target unless target is already a mountpoint.
// The returned guard remembers whether it acted, so Close is always safe to
// defer.
func NewMount(source, target, fstype string, flags uintptr, data string) (*Mount, error) {
	m := &Mount{
		source: source,
		target: target,
		fstype: fstype,
		flags:  flags,
		data:   data,
	}

	err := m.mount()
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mount) mount() error {
	mounted, err := mountinfo.Mounted(m.target)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to check if (%s) is a mountpoint:\n%w", m.target, err)
	}
	if mounted {
		logger.Log.Infof("%s already mounted", m.target)
		return nil
	}

	err = os.MkdirAll(m.target, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create mount target (%s):\n%w", m.target, err)
	}

	logger.Log.Debugf("Mounting (%s) at (%s) type (%s)", m.source, m.target, m.fstype)
	err = unix.Mount(m.source, m.target, m.fstype, m.flags, m.data)
	if err != nil {
		return fmt.Errorf("failed to mount (%s) at (%s):\n%w", m.source, m.target, err)
	}

	m.isMounted = true
	return nil
}

// Target returns the mount's target path.
func (m *Mount) Target() string {
	return m.target
}

// Close unmounts if this guard performed the mount. Errors are logged, which
// makes Close safe to use in defers for the failure path.
func (m *Mount) Close() {
	err := m.CleanClose()
	if err != nil {
		logger.Log.Warnf("%v", err)
	}
}

// CleanClose unmounts if this guard performed the mount and reports failures.
func (m *Mount) CleanClose() error {
	if !m.isMounted {
		return nil
	}

	logger.Log.Debugf("Unmounting (%s)", m.target)
	err := unix.Unmount(m.target, 0)
	if err != nil {
		return fmt.Errorf("failed to unmount (%s):\n%w", m.target, err)
	}

	m.isMounted = false
	return nil
}
