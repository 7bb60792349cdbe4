package location

import "sort"

// Room is a physical space and the devices installed in it.
type Room struct {
	ID string `yaml:"id" json:"id"`

	// Names maps a locale to a display name, e.g. {"en": "Lounge"}.
	Names map[string]string `yaml:"names" json:"names"`

	// Devices lists the IDs of devices located in the room.
	Devices []string `yaml:"devices" json:"devices"`

	// DefaultScenario is the scenario normally active in this room.
	DefaultScenario string `yaml:"default_scenario,omitempty" json:"default_scenario,omitempty"`
}

// Name returns the display name for locale, falling back to "en" and then
// to any name, sorted by locale for stability.
func (r *Room) Name(locale string) string {
	if n, ok := r.Names[locale]; ok {
		return n
	}
	if n, ok := r.Names["en"]; ok {
		return n
	}
	locales := make([]string, 0, len(r.Names))
	for l := range r.Names {
		locales = append(locales, l)
	}
	if len(locales) == 0 {
		return r.ID
	}
	sort.Strings(locales)
	return r.Names[locales[0]]
}

// HasDevice reports whether deviceID is listed in the room.
func (r *Room) HasDevice(deviceID string) bool {
	for _, id := range r.Devices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// DeepCopy returns an independent copy of the room.
func (r *Room) DeepCopy() *Room {
	if r == nil {
		return nil
	}
	cpy := *r
	if r.Names != nil {
		cpy.Names = make(map[string]string, len(r.Names))
		for k, v := range r.Names {
			cpy.Names[k] = v
		}
	}
	if r.Devices != nil {
		cpy.Devices = append([]string(nil), r.Devices...)
	}
	return &cpy
}
