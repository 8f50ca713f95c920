// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte("kernel: linux-generic\n"), 0o644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "linux-generic", config.Kernel)
}

func TestLoadConfigInvalidCarriesCategory(t *testing.T) {
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yaml")
	configYaml := `
files:
  - destination: /etc/motd
`
	err := os.WriteFile(configPath, []byte(configYaml), 0o644)
	require.NoError(t, err)

	_, err = LoadConfig(configPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.ErrorContains(t, err, "exactly one of 'content' and 'source'")
}

func TestLoadConfigMissingFileCarriesCategory(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigValidation)
}
