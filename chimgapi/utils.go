// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimgapi

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type HasIsValid interface {
	IsValid() error
}

func UnmarshalAndValidateYamlFile[ValueType HasIsValid](yamlFilePath string, value ValueType) error {
	yamlData, err := os.ReadFile(yamlFilePath)
	if err != nil {
		return fmt.Errorf("failed to read config file (%s):\n%w", yamlFilePath, err)
	}

	err = UnmarshalAndValidateYaml(yamlData, value)
	if err != nil {
		return fmt.Errorf("invalid config file (%s):\n%w", yamlFilePath, err)
	}

	return nil
}

func UnmarshalAndValidateYaml[ValueType HasIsValid](yamlData []byte, value ValueType) error {
	err := UnmarshalYaml(yamlData, value)
	if err != nil {
		return err
	}

	err = value.IsValid()
	if err != nil {
		return err
	}

	return nil
}

func UnmarshalYaml[ValueType any](yamlData []byte, value ValueType) error {
	reader := bytes.NewReader(yamlData)
	decoder := yaml.NewDecoder(reader)

	// Ensure unknown fields result in an error.
	decoder.KnownFields(true)

	err := decoder.Decode(value)
	if err != nil {
		return err
	}

	return nil
}

func MarshalYaml[ValueType any](value ValueType) (string, error) {
	yamlData, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(yamlData), nil
}
