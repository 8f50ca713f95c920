// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/canonical/chimg/chimgapi"
	"github.com/canonical/chimg/internal/file"
	"github.com/canonical/chimg/internal/logger"
	"github.com/canonical/chimg/internal/shell"
)

type imageFormat int

const (
	imageFormatRaw imageFormat = iota
	imageFormatQcow2
)

// CustomizeImage mounts a disk image, applies the configuration to its root
// filesystem and writes the result to outputPath. QCOW2 images are converted
// to raw for mounting and converted back for the output.
func CustomizeImage(ctx context.Context, config *chimgapi.Config, inputPath string, outputPath string,
	mountpoint string, overwrite bool,
) error {
	exists, err := file.PathExists(outputPath)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return newPreconditionError(fmt.Sprintf("output image (%s) already exists", outputPath))
	}

	format, err := detectImageFormat(inputPath)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "chimg_")
	if err != nil {
		return fmt.Errorf("failed to create image working directory:\n%w", err)
	}
	defer os.RemoveAll(workDir)

	rawImage := filepath.Join(workDir, "image.raw")
	if format == imageFormatQcow2 {
		logger.Log.Info("Converting QCOW2 image to raw ...")
		_, _, err = shell.Execute("qemu-img", "convert", "-f", "qcow2", "-O", "raw", inputPath, rawImage)
		if err != nil {
			return newExternalCommandError("failed to convert image to raw", err)
		}
	} else {
		err = file.Copy(inputPath, rawImage)
		if err != nil {
			return err
		}
	}

	outputs := OutputFiles{
		BaseName:  strings.TrimSuffix(outputPath, filepath.Ext(outputPath)),
		Overwrite: overwrite,
	}
	err = customizeRawImage(ctx, config, rawImage, mountpoint, outputs)
	if err != nil {
		return err
	}

	if format == imageFormatQcow2 {
		logger.Log.Info("Converting raw image back to QCOW2 ...")
		_, _, err = shell.Execute("qemu-img", "convert", "-f", "raw", "-O", "qcow2", rawImage, outputPath)
		if err != nil {
			return newExternalCommandError("failed to convert image to QCOW2", err)
		}
	} else {
		err = file.Move(rawImage, outputPath)
		if err != nil {
			return err
		}
	}

	logger.Log.Infof("Customized image written to (%s)", outputPath)
	return nil
}

func customizeRawImage(ctx context.Context, config *chimgapi.Config, rawImage string, mountpoint string,
	outputs OutputFiles,
) error {
	offset, err := rootPartitionOffset(rawImage)
	if err != nil {
		return err
	}

	err = os.MkdirAll(mountpoint, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create mountpoint (%s):\n%w", mountpoint, err)
	}

	_, _, err = shell.Execute("mount", "-o", fmt.Sprintf("loop,offset=%d", offset), rawImage, mountpoint)
	if err != nil {
		return newExternalCommandError("failed to loop mount image", err)
	}
	defer func() {
		_, _, umountErr := shell.Execute("umount", mountpoint)
		if umountErr != nil {
			logger.Log.Warnf("Failed to unmount image (%s): %s", mountpoint, umountErr)
		}
	}()

	existingResolv, err := overrideResolvConf(mountpoint)
	if err != nil {
		return err
	}

	chroot := NewChroot(config, mountpoint)
	applyErr := chroot.Apply(ctx)
	if applyErr == nil {
		applyErr = WriteOutputFiles(mountpoint, outputs)
	}

	restoreErr := restoreResolvConf(existingResolv, mountpoint)
	if applyErr != nil {
		if restoreErr != nil {
			logger.Log.Warnf("Failed to restore resolv.conf: %s", restoreErr)
		}
		return applyErr
	}
	return restoreErr
}

// detectImageFormat probes the image with file(1). Only QCOW2 is treated
// specially; everything else is assumed to be mountable raw.
func detectImageFormat(imagePath string) (imageFormat, error) {
	out, _, err := shell.Execute("file", imagePath)
	if err != nil {
		return imageFormatRaw, newExternalCommandError(fmt.Sprintf("failed to probe image (%s)", imagePath), err)
	}
	if strings.Contains(out, "QCOW") {
		return imageFormatQcow2, nil
	}
	return imageFormatRaw, nil
}

// rootPartitionOffset returns the byte offset of the root partition inside
// a raw disk image, discovered from the partition table.
func rootPartitionOffset(imagePath string) (int64, error) {
	out, _, err := shell.Execute("fdisk", "-l", imagePath)
	if err != nil {
		return 0, newExternalCommandError(fmt.Sprintf("failed to read partition table of (%s)", imagePath), err)
	}
	return parseRootPartitionOffset(out)
}

func parseRootPartitionOffset(fdiskOutput string) (int64, error) {
	sectorSize := int64(0)
	startSector := int64(-1)

	for _, line := range strings.Split(fdiskOutput, "\n") {
		fields := strings.Fields(line)
		switch {
		case strings.HasPrefix(line, "Sector size"):
			if len(fields) < 4 {
				return 0, newResolutionError("malformed sector size line in partition table")
			}
			size, err := strconv.ParseInt(fields[3], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse sector size:\n%w", err)
			}
			sectorSize = size

		case strings.HasSuffix(line, "Linux filesystem"):
			// On tables with several Linux partitions the first one
			// listed is the root.
			if startSector >= 0 {
				continue
			}
			if len(fields) < 2 {
				continue
			}
			start, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				continue
			}
			startSector = start
		}
	}

	if sectorSize == 0 || startSector < 0 {
		return 0, newResolutionError("no Linux root partition found in image")
	}
	return sectorSize * startSector, nil
}
