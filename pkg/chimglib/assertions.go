// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/shell"
)

// assertionField scans an assertion document for a header field and returns
// its value. Assertions are line oriented: a field is "name: value" at the
// start of a line, continuation lines begin with a space and belong to the
// previous field. The first match wins.
func assertionField(assertion string, field string) (string, bool) {
	prefix := field + ":"
	for _, line := range strings.Split(assertion, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// snapAssertionsInstall fetches and persists the three-assertion trust
// chain (model, account-key, account). Each step's lookup parameter comes
// out of the previous document, so the fetches are strictly sequential.
func (c *Chroot) snapAssertionsInstall(ctx context.Context) error {
	if c.config.Snap == nil {
		return nil
	}

	c.log.Info("Installing snap assertions ...")

	assertionsDir := filepath.Join(c.rootDir, seedAssertionsDir)
	err := os.MkdirAll(assertionsDir, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create assertions directory:\n%w", err)
	}
	err = os.MkdirAll(filepath.Join(c.rootDir, seedSnapsDir), os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create snaps directory:\n%w", err)
	}

	modelAssertion, _, err := shell.Execute("snap", "known", "--remote", "model",
		"series=16",
		"model="+c.config.Snap.AssertionModel,
		"brand-id="+c.config.Snap.AssertionBrand)
	if err != nil {
		return newExternalCommandError("failed to fetch model assertion", err)
	}

	accountKey, ok := assertionField(modelAssertion, "sign-key-sha3-384")
	if !ok {
		return newResolutionError("could not get account key from model assertion")
	}

	err = file.Write(modelAssertion, filepath.Join(assertionsDir, "model"))
	if err != nil {
		return fmt.Errorf("failed to write model assertion:\n%w", err)
	}

	accountKeyAssertion, _, err := shell.Execute("snap", "known", "--remote", "account-key",
		"public-key-sha3-384="+accountKey)
	if err != nil {
		return newExternalCommandError("failed to fetch account-key assertion", err)
	}

	accountID, ok := assertionField(accountKeyAssertion, "account-id")
	if !ok {
		return newResolutionError("could not get account id from account-key assertion")
	}

	err = file.Write(accountKeyAssertion, filepath.Join(assertionsDir, "account-key"))
	if err != nil {
		return fmt.Errorf("failed to write account-key assertion:\n%w", err)
	}

	accountAssertion, _, err := shell.Execute("snap", "known", "--remote", "account",
		"account-id="+accountID)
	if err != nil {
		return newExternalCommandError("failed to fetch account assertion", err)
	}

	err = file.Write(accountAssertion, filepath.Join(assertionsDir, "account"))
	if err != nil {
		return fmt.Errorf("failed to write account assertion:\n%w", err)
	}

	c.log.Info("Snap assertions installed")
	return nil
}
