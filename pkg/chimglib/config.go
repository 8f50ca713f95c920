// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"fmt"

	"github.com/canonical/chimg/chimgapi"
)

// LoadConfig reads and validates a configuration file, classifying
// failures under ErrConfigValidation.
func LoadConfig(configFile string) (*chimgapi.Config, error) {
	config, err := chimgapi.LoadConfigFile(configFile)
	if err != nil {
		return nil, newConfigValidationError(
			fmt.Sprintf("failed to load configuration (%s)", configFile), err)
	}
	return config, nil
}
