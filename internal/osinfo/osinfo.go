// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package osinfo

import (
	"os"
	"strings"
)

// GetDistroAndVersion reports the distribution name and version of the host.
func GetDistroAndVersion() (string, string) {
	output, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "Unknown Distro", "Unknown Version"
	}

	distro := "Unknown Distro"
	version := "Unknown Version"

	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "NAME=") {
			distro = strings.Trim(strings.TrimPrefix(line, "NAME="), "\"")
		} else if strings.HasPrefix(line, "VERSION=") {
			version = strings.Trim(strings.TrimPrefix(line, "VERSION="), "\"")
		}
	}

	return distro, version
}
