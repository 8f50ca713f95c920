// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"fmt"
)

// Command is a shell command run inside the target filesystem.
type Command struct {
	Cmd string `yaml:"cmd" json:"cmd"`
}

func (c *Command) IsValid() error {
	if c.Cmd == "" {
		return fmt.Errorf("'cmd' may not be empty")
	}
	return nil
}
