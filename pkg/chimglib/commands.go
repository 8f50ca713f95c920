// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/shell"
	"github.com/google/uuid"
)

func (c *Chroot) cmdsPre(ctx context.Context) error {
	for _, cmd := range c.config.CmdsPre {
		_, _, err := c.runCommand(cmd.Cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Chroot) cmdsPost(ctx context.Context) error {
	for _, cmd := range c.config.CmdsPost {
		_, _, err := c.runCommand(cmd.Cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

// runCommand runs a configured shell command inside the chroot. The command
// is written to a throwaway script below the chroot root so that the whole
// string is interpreted by the target's shell, not the host's.
func (c *Chroot) runCommand(cmd string) (string, string, error) {
	scriptName := "chimg_" + uuid.New().String()
	scriptPath := filepath.Join(c.rootDir, scriptName)

	err := file.WriteWithPerm(cmd, scriptPath, 0o700)
	if err != nil {
		return "", "", fmt.Errorf("failed to write command script:\n%w", err)
	}
	defer func() {
		removeErr := os.Remove(scriptPath)
		if removeErr != nil {
			c.log.Warnf("Failed to remove command script (%s): %v", scriptPath, removeErr)
		}
	}()

	stdout, stderr, err := shell.Execute("/usr/sbin/chroot", c.rootDir, "/"+scriptName)
	if err != nil {
		return stdout, stderr, newExternalCommandError(fmt.Sprintf("command (%s) failed", cmd), err)
	}
	return stdout, stderr, nil
}
