package device

import "fmt"

// ValidateDefinition checks a single device definition.
func ValidateDefinition(d *Definition) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if d.Protocol == "" {
		return fmt.Errorf("%w: %s: protocol is required", ErrInvalidDevice, d.ID)
	}
	if d.CommandTimeout < 0 {
		return fmt.Errorf("%w: %s: command_timeout must not be negative", ErrInvalidDevice, d.ID)
	}

	for role, cmds := range d.Roles {
		for std, rc := range cmds {
			target := rc.Command
			if target == "" {
				target = std
			}
			if len(d.Commands) > 0 {
				if _, ok := d.Commands[target]; !ok {
					return fmt.Errorf("%w: %s: role %s command %s maps to undeclared command %s",
						ErrInvalidDevice, d.ID, role, std, target)
				}
			}
			if rc.RequiresState != nil && rc.RequiresState.Field == "" {
				return fmt.Errorf("%w: %s: role %s command %s: requires_state.field is required",
					ErrInvalidDevice, d.ID, role, std)
			}
		}
	}
	return nil
}
