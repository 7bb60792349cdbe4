package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionsFile is the on-disk layout of the devices file.
type definitionsFile struct {
	Devices []Definition `yaml:"devices"`
}

// LoadDefinitions reads device definitions from a YAML file:
//
//	devices:
//	  - id: amp
//	    protocol: serial
//	    commands:
//	      power: {effects: {power: "$state"}}
//	      input: {effects: {input: "$input"}}
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading devices file: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes YAML device definitions.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing devices file: %w", err)
	}
	return f.Devices, nil
}
