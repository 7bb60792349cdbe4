package location

import "fmt"

// DeviceChecker reports whether a device exists. *device.Registry
// satisfies it.
type DeviceChecker interface {
	HasDevice(id string) bool
}

// ValidateRoom checks a single room. devices may be nil to skip the
// existence check.
func ValidateRoom(r *Room, devices DeviceChecker) error {
	if r == nil {
		return ErrInvalidRoom
	}
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRoom)
	}
	if len(r.Names) == 0 {
		return fmt.Errorf("%w: %s: at least one name is required", ErrInvalidRoom, r.ID)
	}

	seen := make(map[string]struct{}, len(r.Devices))
	for _, id := range r.Devices {
		if id == "" {
			return fmt.Errorf("%w: %s: empty device id", ErrInvalidRoom, r.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s: device %s listed twice", ErrInvalidRoom, r.ID, id)
		}
		seen[id] = struct{}{}
		if devices != nil && !devices.HasDevice(id) {
			return fmt.Errorf("%w: %s: unknown device %s", ErrInvalidRoom, r.ID, id)
		}
	}
	return nil
}
