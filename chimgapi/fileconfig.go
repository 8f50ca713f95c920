// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"fmt"
)

// File describes a file materialized in the target filesystem, either from
// literal content or by copying a source file or directory.
type File struct {
	// Destination path, relative to the target filesystem root. A leading
	// "/" is accepted and normalized away.
	Destination string `yaml:"destination" json:"destination"`
	// Content is the literal file content. Mutually exclusive with Source.
	Content string `yaml:"content" json:"content,omitempty"`
	// Source is a file or directory copied to Destination. Relative paths
	// are resolved against the config file's directory. Mutually exclusive
	// with Content.
	Source string `yaml:"source" json:"source,omitempty"`
	// Owner is the numeric uid applied to the destination.
	Owner *int `yaml:"owner" json:"owner,omitempty"`
	// Group is the numeric gid applied to the destination.
	Group *int `yaml:"group" json:"group,omitempty"`
	// Mode is the permission bits applied to the destination (e.g. 0o644).
	Mode *uint32 `yaml:"mode" json:"mode,omitempty"`
}

func (f *File) IsValid() error {
	if f.Destination == "" {
		return fmt.Errorf("'destination' may not be empty")
	}

	if (f.Content == "") == (f.Source == "") {
		return fmt.Errorf("exactly one of 'content' and 'source' must be provided for (%s)", f.Destination)
	}

	return nil
}
