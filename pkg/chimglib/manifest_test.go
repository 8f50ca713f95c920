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

func TestSeedYamlManifestLines(t *testing.T) {
	rootDir := t.TempDir()

	seed := &Seed{
		Snaps: []SeedSnap{
			{Name: "hello", Channel: "latest/stable", File: "hello_42.snap"},
			{Name: "core24", Channel: "stable", File: "core24_609.snap"},
		},
	}
	err := seed.Write(rootDir)
	require.NoError(t, err)

	lines, err := seedYamlManifestLines(rootDir)
	require.NoError(t, err)
	assert.Equal(t, "snap:hello\tlatest/stable\t42\nsnap:core24\tstable\t609\n", lines)
}

func TestSeedYamlManifestLinesRevisionFromFilename(t *testing.T) {
	rootDir := t.TempDir()

	// The revision is the digit run after the last underscore; snap names
	// may contain underscores of their own.
	seed := &Seed{
		Snaps: []SeedSnap{
			{Name: "some_snap", Channel: "stable", File: "some_snap_7.snap"},
		},
	}
	err := seed.Write(rootDir)
	require.NoError(t, err)

	lines, err := seedYamlManifestLines(rootDir)
	require.NoError(t, err)
	assert.Equal(t, "snap:some_snap\tstable\t7\n", lines)
}

func TestSeedManifestLinesNoSeed(t *testing.T) {
	rootDir := t.TempDir()

	lines, err := seedManifestLines(rootDir)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

const exampleSystemModel = `type: model
authority-id: canonical
brand-id: canonical
model: ubuntu-core-24-amd64
snaps:
    -
        default-channel: 24/stable
        id: amcUKQILKXHHTlmSa7NMdnXSx02dNeeT
        name: pc-kernel
        type: kernel
    -
        default-channel: latest/stable
        id: PMrrV4ml8uWuEUDBT8dSGnKUYbevVhc4
        name: snapd
        type: snapd
sign-key-sha3-384: 9tydnLa6MTJ-jaQTFUXEwHl1yRx7ZS4K5cyFDhYDcPzhS7uyEkDxdUjg9g08BtNn

AXNpZw==`

const exampleSystemAssertions = `type: snap-declaration
authority-id: canonical
snap-id: amcUKQILKXHHTlmSa7NMdnXSx02dNeeT
snap-name: pc-kernel
sign-key-sha3-384: abc

AXNpZw==

type: snap-declaration
authority-id: canonical
snap-id: PMrrV4ml8uWuEUDBT8dSGnKUYbevVhc4
snap-name: snapd
sign-key-sha3-384: abc

AXNpZw==

type: snap-revision
snap-id: amcUKQILKXHHTlmSa7NMdnXSx02dNeeT
snap-revision: 2105
sign-key-sha3-384: abc

AXNpZw==

type: snap-revision
snap-id: PMrrV4ml8uWuEUDBT8dSGnKUYbevVhc4
snap-revision: 21759
sign-key-sha3-384: abc

AXNpZw==`

func writeCoreSystem(t *testing.T, rootDir string, label string) string {
	systemDir := filepath.Join(rootDir, seedDir, "systems", label)
	err := os.MkdirAll(filepath.Join(systemDir, "assertions"), os.ModePerm)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(systemDir, "model"), []byte(exampleSystemModel), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(systemDir, "assertions", "snaps"), []byte(exampleSystemAssertions), 0o644)
	require.NoError(t, err)
	return systemDir
}

func TestSeedManifestLinesCoreSystem(t *testing.T) {
	rootDir := t.TempDir()
	writeCoreSystem(t, rootDir, "20260829")

	lines, err := seedManifestLines(rootDir)
	require.NoError(t, err)
	assert.Equal(t, "snap:pc-kernel\t24/stable\t2105\nsnap:snapd\tlatest/stable\t21759\n", lines)
}

func TestLookForCoreSystemFromModeenv(t *testing.T) {
	rootDir := t.TempDir()
	expected := writeCoreSystem(t, rootDir, "20260829")
	writeCoreSystem(t, rootDir, "20250101")

	modeenvPath := filepath.Join(rootDir, "var/lib/snapd/modeenv")
	err := os.WriteFile(modeenvPath, []byte("mode=run\nrecovery_system=20260829\n"), 0o644)
	require.NoError(t, err)

	systemDir, err := lookForCoreSystem(rootDir)
	require.NoError(t, err)
	assert.Equal(t, expected, systemDir)
}

func TestLookForCoreSystemSoleEntry(t *testing.T) {
	rootDir := t.TempDir()
	expected := writeCoreSystem(t, rootDir, "20260829")

	systemDir, err := lookForCoreSystem(rootDir)
	require.NoError(t, err)
	assert.Equal(t, expected, systemDir)
}

func TestLookForCoreSystemAmbiguous(t *testing.T) {
	rootDir := t.TempDir()
	writeCoreSystem(t, rootDir, "20260829")
	writeCoreSystem(t, rootDir, "20250101")

	// Multiple systems and no modeenv: refuse to guess.
	systemDir, err := lookForCoreSystem(rootDir)
	require.NoError(t, err)
	assert.Empty(t, systemDir)
}

func TestParseAssertions(t *testing.T) {
	assertions := parseAssertions(exampleSystemAssertions)
	require.Len(t, assertions, 4)

	assert.Equal(t, "snap-declaration", assertions[0]["type"])
	assert.Equal(t, "pc-kernel", assertions[0]["snap-name"])
	assert.Equal(t, "snap-revision", assertions[2]["type"])
	assert.Equal(t, "2105", assertions[2]["snap-revision"])
}

func TestParseAssertionsContinuationLines(t *testing.T) {
	document := "type: model\nsnaps:\n    -\n        name: pc-kernel\nsign-key-sha3-384: abc"

	assertions := parseAssertions(document)
	require.Len(t, assertions, 1)
	assert.Equal(t, "\n    -\n        name: pc-kernel", assertions[0]["snaps"])
}

func TestBuildFilelist(t *testing.T) {
	rootDir := t.TempDir()

	err := os.MkdirAll(filepath.Join(rootDir, "etc/cloud"), os.ModePerm)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(rootDir, "etc/cloud/cloud.cfg"), []byte("{}\n"), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(rootDir, "etc/motd"), []byte("welcome\n"), 0o644)
	require.NoError(t, err)

	filelist, err := BuildFilelist(rootDir)
	require.NoError(t, err)
	assert.Equal(t, "/etc\n/etc/cloud\n/etc/cloud/cloud.cfg\n/etc/motd\n", filelist)
}

func TestWriteReportRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.manifest")

	err := os.WriteFile(path, []byte("old\n"), 0o644)
	require.NoError(t, err)

	err = writeReport(path, "new\n", OutputFiles{})
	assert.ErrorIs(t, err, ErrPrecondition)

	err = writeReport(path, "new\n", OutputFiles{Overwrite: true})
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(contents))
}

func TestWriteReportCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.filelist")

	err := writeReport(path, "/etc\n", OutputFiles{Compress: true})
	require.NoError(t, err)

	_, err = os.Stat(path + ".gz")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestParseRootPartitionOffset(t *testing.T) {
	fdiskOutput := `Disk image.raw: 3.5 GiB, 3758096384 bytes, 7340032 sectors
Units: sectors of 1 * 512 = 512 bytes
Sector size (logical/physical): 512 bytes / 512 bytes
I/O size (minimum/optimal): 512 bytes / 512 bytes
Disklabel type: gpt

Device        Start     End Sectors  Size Type
image.raw1   227328 7339998 7112671  3.4G Linux filesystem
image.raw14    2048   10239    8192    4M BIOS boot
image.raw15   10240  227327  217088  106M EFI System`

	offset, err := parseRootPartitionOffset(fdiskOutput)
	require.NoError(t, err)
	assert.Equal(t, int64(227328*512), offset)
}

func TestParseRootPartitionOffsetNoRootPartition(t *testing.T) {
	fdiskOutput := `Sector size (logical/physical): 512 bytes / 512 bytes

Device        Start     End Sectors  Size Type
image.raw14    2048   10239    8192    4M BIOS boot`

	_, err := parseRootPartitionOffset(fdiskOutput)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestParseRootPartitionOffsetFirstLinuxPartitionWins(t *testing.T) {
	fdiskOutput := `Sector size (logical/physical): 512 bytes / 512 bytes

Device        Start     End Sectors  Size Type
image.raw1   227328 7339998 7112671  3.4G Linux filesystem
image.raw2  7340000 9437182 2097183    1G Linux filesystem`

	offset, err := parseRootPartitionOffset(fdiskOutput)
	require.NoError(t, err)
	assert.Equal(t, int64(227328*512), offset)
}

func TestParseRootPartitionOffsetIgnoresBareLinuxType(t *testing.T) {
	// MBR tables label partitions plain "Linux"; only the GPT
	// "Linux filesystem" type identifies the root.
	fdiskOutput := `Sector size (logical/physical): 512 bytes / 512 bytes

Device        Start     End Sectors  Size Type
image.raw1     2048 2099199 2097152    1G Linux`

	_, err := parseRootPartitionOffset(fdiskOutput)
	assert.ErrorIs(t, err, ErrResolution)
}
