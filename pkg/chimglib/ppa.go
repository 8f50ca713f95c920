// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/canonical/chimg/chimgapi"
	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/shell"
)

const keyserverURLTemplate = "https://keyserver.ubuntu.com/pks/lookup?op=get&search=0x%s"

// ppaPaths returns the four per-repository configuration files, relative to
// the target filesystem root.
func ppaPaths(name string) (sources, key, auth, pin string) {
	sources = filepath.Join("etc/apt/sources.list.d", name+".sources")
	key = filepath.Join("etc/apt/trusted.gpg.d", name+".gpg")
	auth = filepath.Join("etc/apt/auth.conf.d", name+".conf")
	pin = filepath.Join("etc/apt/preferences.d", name+".pref")
	return sources, key, auth, pin
}

// enterPPAs configures all declared repositories and pushes their teardown.
// With no repositories declared, a single index refresh still runs so that
// later installs see a current index.
func (c *Chroot) enterPPAs(ctx context.Context, stack *guardStack) error {
	if len(c.config.PPAs) == 0 {
		return c.aptUpdate()
	}

	for i := range c.config.PPAs {
		ppa := &c.config.PPAs[i]
		err := c.configurePPA(ppa)
		if err != nil {
			return err
		}
		stack.push("ppa "+ppa.Name, func() error { return c.removePPA(ppa) })
	}
	c.log.Info("All PPAs setup")

	policy, _, err := shell.Execute("/usr/sbin/chroot", c.rootDir, "apt-cache", "policy")
	if err != nil {
		return newExternalCommandError("failed to query apt policy", err)
	}
	c.log.Info(policy)
	return nil
}

// configurePPA turns one repository declaration into on-disk apt
// configuration and refreshes the package index.
func (c *Chroot) configurePPA(ppa *chimgapi.PPA) error {
	c.log.Infof("Adding PPA %s ...", ppa.Name)

	sourcesPath, keyPath, authPath, pinPath := ppaPaths(ppa.Name)

	if ppa.Fingerprint != "" && ppa.SignedBy != "" {
		c.log.Warn("repo key fingerprint and signed_by are mutually exclusive. Using the fingerprint")
	}

	signedBy := ppa.SignedBy
	if ppa.Fingerprint != "" {
		err := c.installRepositoryKey(ppa.Fingerprint, filepath.Join(c.rootDir, keyPath))
		if err != nil {
			return err
		}
		signedBy = "/" + keyPath
	}

	err := file.Write(sourcesFileContent(ppa, signedBy), filepath.Join(c.rootDir, sourcesPath))
	if err != nil {
		return fmt.Errorf("failed to write sources file for PPA %s:\n%w", ppa.Name, err)
	}

	if auth := authFileContent(ppa); auth != "" {
		err = file.Write(auth, filepath.Join(c.rootDir, authPath))
		if err != nil {
			return fmt.Errorf("failed to write auth file for PPA %s:\n%w", ppa.Name, err)
		}
	}

	if ppa.PinName != "" && ppa.PinPriority != nil {
		pin := fmt.Sprintf("Package: *\nPin: release o=%s\nPin-Priority: %d\n", ppa.PinName, *ppa.PinPriority)
		err = file.Write(pin, filepath.Join(c.rootDir, pinPath))
		if err != nil {
			return fmt.Errorf("failed to write pin file for PPA %s:\n%w", ppa.Name, err)
		}
	}

	err = c.aptUpdate()
	if err != nil {
		return err
	}

	c.log.Infof("PPA %s added", ppa.Name)
	return nil
}

// sourcesFileContent renders the deb822 sources stanza for a repository.
func sourcesFileContent(ppa *chimgapi.PPA, signedBy string) string {
	lines := []string{
		"X-Repolib-Name: " + ppa.Name,
		"Enabled: yes",
		"Types: deb",
		"URIs: " + ppa.URI,
		"Suites: " + strings.Join(ppa.Suites, " "),
		"Components: " + strings.Join(ppa.Components, " "),
	}
	if signedBy != "" {
		lines = append(lines, "Signed-By: "+signedBy)
	}
	return strings.Join(lines, "\n")
}

// authFileContent renders the apt auth.conf.d entry for a repository, or ""
// when no credentials are declared.
func authFileContent(ppa *chimgapi.PPA) string {
	lines := []string(nil)
	if ppa.Username != "" && ppa.Password != "" {
		lines = append(lines,
			fmt.Sprintf("machine %s login %s password %s", ppa.URI, ppa.Username, ppa.Password))
	}
	lines = append(lines, ppa.AuthLines...)
	return strings.Join(lines, "\n")
}

// removePPA deletes the per-repository files written by configurePPA and
// refreshes the index, unless the repository is declared with keep.
func (c *Chroot) removePPA(ppa *chimgapi.PPA) error {
	if ppa.Keep {
		c.log.Infof("Keeping PPA %s", ppa.Name)
		return nil
	}

	c.log.Infof("Removing PPA %s ...", ppa.Name)

	sourcesPath, keyPath, authPath, pinPath := ppaPaths(ppa.Name)
	for _, relPath := range []string{sourcesPath, keyPath, authPath, pinPath} {
		path := filepath.Join(c.rootDir, relPath)
		exists, err := file.PathExists(path)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		err = os.Remove(path)
		if err != nil {
			return err
		}
	}

	err := c.aptUpdate()
	if err != nil {
		return err
	}

	c.log.Infof("PPA %s removed", ppa.Name)
	return nil
}

// installRepositoryKey fetches the ASCII-armored key for the fingerprint
// from the Ubuntu keyserver and writes its binary form to destPath.
func (c *Chroot) installRepositoryKey(fingerprint string, destPath string) error {
	url := fmt.Sprintf(keyserverURLTemplate, fingerprint)

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch key (%s) from keyserver:\n%w", fingerprint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newResolutionError(
			fmt.Sprintf("keyserver returned status %d for fingerprint (%s)", resp.StatusCode, fingerprint))
	}

	armored, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read keyserver response:\n%w", err)
	}

	armoredFile, err := os.CreateTemp("", "chimg_")
	if err != nil {
		return fmt.Errorf("failed to create temporary key file:\n%w", err)
	}
	defer os.Remove(armoredFile.Name())

	_, err = armoredFile.Write(armored)
	if err != nil {
		armoredFile.Close()
		return fmt.Errorf("failed to write temporary key file:\n%w", err)
	}
	err = armoredFile.Close()
	if err != nil {
		return fmt.Errorf("failed to close temporary key file:\n%w", err)
	}

	err = file.CreateDestinationDir(destPath, os.ModePerm)
	if err != nil {
		return err
	}

	_, _, err = shell.Execute("/usr/bin/gpg", "--yes", "--dearmor", "--output", destPath, armoredFile.Name())
	if err != nil {
		return newExternalCommandError("failed to dearmor repository key", err)
	}

	return nil
}
