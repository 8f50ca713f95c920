// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/logger"
)

type resolvConfType int

const (
	resolvConfTypeNone resolvConfType = iota
	resolvConfTypeSymlink
	resolvConfTypeFile
)

type resolvConfInfo struct {
	existingType resolvConfType
	fileContents string
	filePerms    os.FileMode
	symlinkPath  string
}

const resolvConfPath = "etc/resolv.conf"

// overrideResolvConf replaces the target filesystem's resolv.conf with the
// host's, so that in-chroot processes can access the network. The previous
// state is returned so it can be restored afterwards.
func overrideResolvConf(rootDir string) (resolvConfInfo, error) {
	logger.Log.Debug("Overriding resolv.conf file")

	targetPath := filepath.Join(rootDir, resolvConfPath)

	existing := resolvConfInfo{}

	stat, err := os.Lstat(targetPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return resolvConfInfo{}, fmt.Errorf("failed to stat resolv.conf file:\n%w", err)
		}
		existing.existingType = resolvConfTypeNone
	} else if stat.Mode()&os.ModeSymlink != 0 {
		symlinkPath, err := os.Readlink(targetPath)
		if err != nil {
			return resolvConfInfo{}, fmt.Errorf("failed to read resolv.conf symlink's path:\n%w", err)
		}
		existing.existingType = resolvConfTypeSymlink
		existing.symlinkPath = symlinkPath
	} else {
		fileContents, err := file.Read(targetPath)
		if err != nil {
			return resolvConfInfo{}, fmt.Errorf("failed to read resolv.conf file:\n%w", err)
		}
		existing.existingType = resolvConfTypeFile
		existing.fileContents = fileContents
		existing.filePerms = stat.Mode().Perm()
	}

	err = os.RemoveAll(targetPath)
	if err != nil {
		return resolvConfInfo{}, fmt.Errorf("failed to delete existing resolv.conf file:\n%w", err)
	}

	err = file.Copy("/etc/resolv.conf", targetPath)
	if err != nil {
		return resolvConfInfo{}, fmt.Errorf("failed to override resolv.conf file with host's resolv.conf:\n%w", err)
	}

	return existing, nil
}

func restoreResolvConf(existing resolvConfInfo, rootDir string) error {
	logger.Log.Debug("Restoring resolv.conf file")

	targetPath := filepath.Join(rootDir, resolvConfPath)

	err := os.RemoveAll(targetPath)
	if err != nil {
		return fmt.Errorf("failed to delete overridden resolv.conf file:\n%w", err)
	}

	switch existing.existingType {
	case resolvConfTypeNone:
		// Nothing to restore. A process on first boot (e.g. systemd-resolved)
		// will recreate the file.

	case resolvConfTypeFile:
		err := file.WriteWithPerm(existing.fileContents, targetPath, existing.filePerms)
		if err != nil {
			return fmt.Errorf("failed to restore resolv.conf file:\n%w", err)
		}

	case resolvConfTypeSymlink:
		err := os.Symlink(existing.symlinkPath, targetPath)
		if err != nil {
			return fmt.Errorf("failed to restore resolv.conf symlink:\n%w", err)
		}

	default:
		return fmt.Errorf("unknown resolvConfType value (%v)", existing.existingType)
	}

	return nil
}
