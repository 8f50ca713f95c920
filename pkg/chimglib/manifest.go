// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/logger"
	"github.com/canonical/chimg/internal/shell"
	"github.com/klauspost/pgzip"
	"gopkg.in/yaml.v3"
)

// OutputFiles describes the report files produced after a filesystem has
// been customized.
type OutputFiles struct {
	// BaseName is the path prefix the report extensions get appended to.
	BaseName string
	// Overwrite permits replacing existing report files.
	Overwrite bool
	// Compress gzips the report files, adding a .gz extension.
	Compress bool
}

// WriteOutputFiles produces a package manifest and a file list for the
// given root filesystem.
func WriteOutputFiles(rootDir string, outputs OutputFiles) error {
	manifest, err := BuildManifest(rootDir)
	if err != nil {
		return err
	}
	err = writeReport(outputs.BaseName+".manifest", manifest, outputs)
	if err != nil {
		return err
	}

	filelist, err := BuildFilelist(rootDir)
	if err != nil {
		return err
	}
	return writeReport(outputs.BaseName+".filelist", filelist, outputs)
}

func writeReport(path, content string, outputs OutputFiles) error {
	if outputs.Compress {
		path += ".gz"
	}

	exists, err := file.PathExists(path)
	if err != nil {
		return err
	}
	if exists && !outputs.Overwrite {
		return newPreconditionError(fmt.Sprintf("output file (%s) already exists", path))
	}

	logger.Log.Infof("Writing report file (%s)", path)

	if !outputs.Compress {
		return file.Write(content, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file (%s):\n%w", path, err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	_, err = io.WriteString(gz, content)
	if err != nil {
		return fmt.Errorf("failed to write report file (%s):\n%w", path, err)
	}
	err = gz.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize report file (%s):\n%w", path, err)
	}
	return f.Close()
}

// BuildManifest lists the installed deb packages followed by the seeded
// snaps. Deb lines are "name\tversion", snap lines are
// "snap:name\tchannel\trevision".
func BuildManifest(rootDir string) (string, error) {
	out, _, err := shell.Execute("chroot", rootDir,
		"dpkg-query", "--show", "--showformat", "${Package}\\t${Version}\\n")
	if err != nil {
		return "", newExternalCommandError("failed to query installed packages", err)
	}

	sb := strings.Builder{}
	sb.WriteString(out)
	if out != "" && !strings.HasSuffix(out, "\n") {
		sb.WriteString("\n")
	}

	snapLines, err := seedManifestLines(rootDir)
	if err != nil {
		return "", err
	}
	sb.WriteString(snapLines)

	return sb.String(), nil
}

// BuildFilelist walks the root filesystem and returns one absolute path per
// line, sorted.
func BuildFilelist(rootDir string) (string, error) {
	paths := []string{}
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		paths = append(paths, "/"+rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk root filesystem:\n%w", err)
	}

	sort.Strings(paths)
	return strings.Join(paths, "\n") + "\n", nil
}

var nonDigitPattern = regexp.MustCompile(`[^0-9]`)

// seedManifestLines renders the seeded snaps as manifest lines. Classic
// seeds carry a seed.yaml; Ubuntu Core style seeds are described by
// assertions under the systems directory instead.
func seedManifestLines(rootDir string) (string, error) {
	seedYaml := filepath.Join(rootDir, seedYamlPath)
	exists, err := file.PathExists(seedYaml)
	if err != nil {
		return "", err
	}
	if exists {
		return seedYamlManifestLines(rootDir)
	}

	systemDir, err := lookForCoreSystem(rootDir)
	if err != nil {
		return "", err
	}
	if systemDir == "" {
		return "", nil
	}
	return coreSystemManifestLines(systemDir)
}

func seedYamlManifestLines(rootDir string) (string, error) {
	seed, err := ReadSeedYaml(rootDir)
	if err != nil {
		return "", err
	}

	sb := strings.Builder{}
	for _, sn := range seed.Snaps {
		// The revision is only recorded in the artifact's file name.
		revision := ""
		if i := strings.LastIndex(sn.File, "_"); i >= 0 {
			revision = nonDigitPattern.ReplaceAllString(sn.File[i+1:], "")
		}
		sb.WriteString(fmt.Sprintf("snap:%s\t%s\t%s\n", sn.Name, sn.Channel, revision))
	}
	return sb.String(), nil
}

// lookForCoreSystem finds the seeded system directory of an Ubuntu Core
// style image. The system label comes from the modeenv file when present;
// a sole entry under the systems directory is acceptable otherwise.
func lookForCoreSystem(rootDir string) (string, error) {
	systemsDir := filepath.Join(rootDir, seedDir, "systems")
	isDir, err := file.IsDir(systemsDir)
	if err != nil || !isDir {
		return "", nil
	}

	systemName := ""
	modeenvPath := filepath.Join(rootDir, "var/lib/snapd/modeenv")
	modeenvExists, err := file.PathExists(modeenvPath)
	if err != nil {
		return "", err
	}
	if modeenvExists {
		contents, err := file.Read(modeenvPath)
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(contents, "\n") {
			if name, ok := strings.CutPrefix(line, "recovery_system="); ok {
				systemName = strings.TrimSpace(name)
				break
			}
		}
	}

	if systemName == "" {
		entries, err := os.ReadDir(systemsDir)
		if err != nil {
			return "", fmt.Errorf("failed to list systems directory:\n%w", err)
		}
		if len(entries) != 1 {
			logger.Log.Debugf("Expected exactly one seeded system, found %d", len(entries))
			return "", nil
		}
		systemName = entries[0].Name()
	}

	systemDir := filepath.Join(systemsDir, systemName)
	isDir, err = file.IsDir(systemDir)
	if err != nil || !isDir {
		return "", nil
	}
	return systemDir, nil
}

func coreSystemManifestLines(systemDir string) (string, error) {
	files := []string{filepath.Join(systemDir, "model")}
	assertionFiles, err := filepath.Glob(filepath.Join(systemDir, "assertions", "*"))
	if err != nil {
		return "", err
	}
	files = append(files, assertionFiles...)

	asserts := map[string][]map[string]string{}
	for _, path := range files {
		contents, err := file.Read(path)
		if err != nil {
			return "", err
		}
		for _, a := range parseAssertions(contents) {
			asserts[a["type"]] = append(asserts[a["type"]], a)
		}
	}

	models := asserts["model"]
	if len(models) != 1 {
		return "", newResolutionError(fmt.Sprintf("expected exactly one model assertion, found %d", len(models)))
	}

	modelSnaps := []struct {
		Name           string `yaml:"name"`
		DefaultChannel string `yaml:"default-channel"`
	}{}
	err = yaml.Unmarshal([]byte(models[0]["snaps"]), &modelSnaps)
	if err != nil {
		return "", fmt.Errorf("failed to parse model assertion snaps:\n%w", err)
	}

	nameToID := map[string]string{}
	for _, decl := range asserts["snap-declaration"] {
		nameToID[decl["snap-name"]] = decl["snap-id"]
	}
	idToRev := map[string]string{}
	for _, rev := range asserts["snap-revision"] {
		idToRev[rev["snap-id"]] = rev["snap-revision"]
	}

	sort.Slice(modelSnaps, func(i, j int) bool { return modelSnaps[i].Name < modelSnaps[j].Name })

	sb := strings.Builder{}
	for _, sn := range modelSnaps {
		rev := idToRev[nameToID[sn.Name]]
		sb.WriteString(fmt.Sprintf("snap:%s\t%s\t%s\n", sn.Name, sn.DefaultChannel, rev))
	}
	return sb.String(), nil
}

// parseAssertions splits a snapd assertion document into its blocks. Each
// block is a set of "key: value" lines; continuation lines start with a
// space and extend the previous key's value.
func parseAssertions(document string) []map[string]string {
	assertions := []map[string]string{}
	for _, block := range strings.Split(document, "\n\n") {
		if !strings.HasPrefix(block, "type:") {
			continue
		}
		a := map[string]string{}
		key := ""
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, " ") {
				a[key] += "\n" + line
				continue
			}
			k, v, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			key = strings.TrimSpace(k)
			a[key] = strings.TrimSpace(v)
		}
		assertions = append(assertions, a)
	}
	return assertions
}
