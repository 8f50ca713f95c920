// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"fmt"
)

// Filesystem describes the root filesystem of the target.
type Filesystem struct {
	// RootFSLabel is the filesystem label the bootloader should use to
	// reference the root filesystem.
	RootFSLabel string `yaml:"root_fs_label" json:"root_fs_label"`
}

func (f *Filesystem) IsValid() error {
	if f.RootFSLabel == "" {
		return fmt.Errorf("'root_fs_label' may not be empty")
	}
	return nil
}
