package device

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Update is a partial state report from a bridge. Nil fields are left
// untouched in the cache.
type Update struct {
	Power  *bool          `mapstructure:"power"`
	Input  *string        `mapstructure:"input"`
	Output *string        `mapstructure:"output"`
	Extra  map[string]any `mapstructure:",remain"`
}

func (u Update) applyTo(s *State) {
	if u.Power != nil {
		s.Power = PowerFromBool(*u.Power)
	}
	if u.Input != nil {
		s.Input = *u.Input
	}
	if u.Output != nil {
		s.Output = *u.Output
	}
	if len(u.Extra) > 0 {
		if s.Extra == nil {
			s.Extra = make(map[string]any, len(u.Extra))
		}
		for k, v := range u.Extra {
			s.Extra[k] = deepCopyValue(v)
		}
	}
}

// DecodeUpdate parses a bridge state payload.
//
// The payload is a JSON object. "power" accepts booleans and "on"/"off"
// strings (weak typing), "input" and "output" are strings, and every other
// key lands in Extra. A payload consisting only of {"state": {...}} is
// unwrapped.
func DecodeUpdate(payload []byte) (Update, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Update{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if inner, ok := raw["state"].(map[string]any); ok && len(raw) == 1 {
		raw = inner
	}
	if p, ok := raw["power"].(string); ok {
		pw, err := toPower(p)
		if err != nil {
			return Update{}, err
		}
		raw["power"] = pw == PowerOn
	}

	var u Update
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &u,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Update{}, fmt.Errorf("creating state decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Update{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return u, nil
}
