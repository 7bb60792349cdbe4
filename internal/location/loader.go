package location

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type roomsFile struct {
	Rooms []Room `yaml:"rooms"`
}

// LoadRooms reads room definitions from a YAML file:
//
//	rooms:
//	  - id: lounge
//	    names: {en: Lounge, de: Wohnzimmer}
//	    devices: [projector, amp]
//	    default_scenario: movie
func LoadRooms(path string) ([]Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rooms file: %w", err)
	}
	return ParseRooms(data)
}

// ParseRooms decodes YAML room definitions.
func ParseRooms(data []byte) ([]Room, error) {
	var f roomsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rooms file: %w", err)
	}
	return f.Rooms, nil
}
