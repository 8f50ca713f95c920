// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package file

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/canonical/chimg/internal/logger"
)

// Read returns the contents of the file at path as a string.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file (%s):\n%w", path, err)
	}
	return string(data), nil
}

// Write writes content to path with default (0644) permissions.
func Write(content string, path string) error {
	return WriteWithPerm(content, path, 0o644)
}

// WriteWithPerm writes content to path with the given permissions, creating
// parent directories as needed.
func WriteWithPerm(content string, path string, perm os.FileMode) error {
	err := CreateDestinationDir(path, os.ModePerm)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, []byte(content), perm)
	if err != nil {
		return fmt.Errorf("failed to write file (%s):\n%w", path, err)
	}

	// The permissions given to WriteFile are subject to umask.
	err = os.Chmod(path, perm)
	if err != nil {
		return fmt.Errorf("failed to set permissions of file (%s):\n%w", path, err)
	}

	return nil
}

// PathExists reports whether path exists at all (file, dir or symlink).
func PathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat (%s):\n%w", path, err)
	}
	return true, nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat (%s):\n%w", path, err)
	}
	return info.IsDir(), nil
}

// CreateDestinationDir creates the parent directory of filePath.
func CreateDestinationDir(filePath string, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	err := os.MkdirAll(dir, perm)
	if err != nil {
		return fmt.Errorf("failed to create directory (%s):\n%w", dir, err)
	}
	return nil
}

// Copy copies the file at src to dst, preserving the source's permissions
// and creating the destination directory if needed.
func Copy(src string, dst string) error {
	logger.Log.Debugf("Copying (%s) to (%s)", src, dst)

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to read source file info (%s):\n%w", src, err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("source (%s) is not a file", src)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file:\n%w", err)
	}
	defer srcFile.Close()

	err = CreateDestinationDir(dst, os.ModePerm)
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file:\n%w", err)
	}
	defer dstFile.Close()

	// The permissions given to OpenFile are subject to umask.
	err = dstFile.Chmod(srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to set destination file permissions:\n%w", err)
	}

	_, err = io.Copy(dstFile, srcFile)
	if err != nil {
		return fmt.Errorf("failed to copy file:\n%w", err)
	}

	err = dstFile.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize destination file:\n%w", err)
	}

	return nil
}

// CopyDir recursively copies the tree under src into dst, creating dst if
// needed and merging into existing directories. Each copied entry keeps its
// source permissions; pre-existing destination entries are overwritten.
func CopyDir(src string, dst string) error {
	logger.Log.Debugf("Copying directory (%s) to (%s)", src, dst)

	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, relPath)

		if entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			err = os.MkdirAll(dstPath, info.Mode().Perm())
			if err != nil {
				return fmt.Errorf("failed to create directory (%s):\n%w", dstPath, err)
			}
			return nil
		}

		if entry.Type()&os.ModeSymlink != 0 {
			symlinkPath, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink (%s):\n%w", path, err)
			}
			err = os.RemoveAll(dstPath)
			if err != nil {
				return err
			}
			err = os.Symlink(symlinkPath, dstPath)
			if err != nil {
				return fmt.Errorf("failed to copy symlink (%s):\n%w", path, err)
			}
			return nil
		}

		return Copy(path, dstPath)
	})
}

// Move renames src to dst, falling back to copy+delete when the rename
// crosses filesystems (e.g. from a tmpfs scratch directory into the chroot).
func Move(src string, dst string) error {
	err := CreateDestinationDir(dst, os.ModePerm)
	if err != nil {
		return err
	}

	err = os.Rename(src, dst)
	if err == nil {
		return nil
	}

	err = Copy(src, dst)
	if err != nil {
		return fmt.Errorf("failed to move file (%s) to (%s):\n%w", src, dst, err)
	}

	err = os.Remove(src)
	if err != nil {
		return fmt.Errorf("failed to remove source file (%s) after move:\n%w", src, err)
	}

	return nil
}

// GetAbsPathWithBase resolves path relative to baseDirPath unless it is
// already absolute.
func GetAbsPathWithBase(baseDirPath string, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDirPath, path)
}
