// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/canonical/chimg/chimgapi"
	"github.com/canonical/chimg/internal/file"
)

// filesInstall places all configured files and directories into the target
// filesystem.
func (c *Chroot) filesInstall(ctx context.Context) error {
	for _, f := range c.config.Files {
		err := c.fileInstall(f)
		if err != nil {
			return fmt.Errorf("failed to install file (%s):\n%w", f.Destination, err)
		}
	}
	return nil
}

// fileInstall installs a single file entry. The destination is interpreted
// relative to the target filesystem root even when given with a leading
// slash. Ownership and mode are applied to the destination root only, not
// recursively.
func (c *Chroot) fileInstall(f chimgapi.File) error {
	destPath := filepath.Join(c.rootDir, strings.TrimPrefix(f.Destination, "/"))

	switch {
	case f.Content != "":
		c.log.Infof("Writing file (%s)", f.Destination)

		err := file.CreateDestinationDir(destPath, os.ModePerm)
		if err != nil {
			return err
		}
		err = file.Write(f.Content, destPath)
		if err != nil {
			return err
		}

	default:
		sourceInfo, err := os.Stat(f.Source)
		if err != nil {
			return fmt.Errorf("failed to stat source (%s):\n%w", f.Source, err)
		}

		if sourceInfo.IsDir() {
			c.log.Infof("Copying directory (%s) to (%s)", f.Source, f.Destination)
			err = file.CopyDir(f.Source, destPath)
		} else {
			c.log.Infof("Copying file (%s) to (%s)", f.Source, f.Destination)
			err = file.Copy(f.Source, destPath)
		}
		if err != nil {
			return err
		}
	}

	return applyFileMetadata(destPath, f)
}

func applyFileMetadata(destPath string, f chimgapi.File) error {
	if f.Owner != nil {
		err := os.Chown(destPath, *f.Owner, -1)
		if err != nil {
			return fmt.Errorf("failed to set owner on (%s):\n%w", destPath, err)
		}
	}
	if f.Group != nil {
		err := os.Chown(destPath, -1, *f.Group)
		if err != nil {
			return fmt.Errorf("failed to set group on (%s):\n%w", destPath, err)
		}
	}
	if f.Mode != nil {
		err := os.Chmod(destPath, fs.FileMode(*f.Mode))
		if err != nil {
			return fmt.Errorf("failed to set mode on (%s):\n%w", destPath, err)
		}
	}
	return nil
}
