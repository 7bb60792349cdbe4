package scenario

// movieScenario uses the projector, the amp on hdmi1 and the bluray.
func movieScenario() Definition {
	return Definition{
		ID:   "movie",
		Name: "Movie Night",
		Roles: map[string]string{
			"volume":  "amp",
			"display": "projector",
		},
		Devices: map[string][]string{
			"projector": {"display"},
			"amp":       {"volume", "audio"},
			"bluray":    {"source"},
		},
		StartupSequence: []CommandStep{
			step("projector", "power_on", nil),
			step("amp", "power", map[string]any{"state": "on"}),
			step("amp", "input", map[string]any{"input": "hdmi1"}),
			step("bluray", "power_on", nil),
			step("projector", "input", map[string]any{"input": "hdmi"}),
		},
		ShutdownSequence: ShutdownSequence{
			Complete: []CommandStep{
				step("projector", "power_off", nil),
				step("amp", "power", map[string]any{"state": "off"}),
				step("bluray", "power_off", nil),
			},
			Transition: []CommandStep{
				step("bluray", "power_off", nil),
				step("projector", "power_off", nil),
			},
		},
		Actions: []RoleActionPreset{
			{Name: "mute", Role: "volume", Command: "mute"},
			{Name: "loud", Role: "volume", Command: "set_level", Params: map[string]any{"level": 80}},
		},
	}
}

// musicScenario shares the amp with movieScenario on a different input.
func musicScenario() Definition {
	return Definition{
		ID:   "music",
		Name: "Music",
		Roles: map[string]string{
			"volume": "amp",
		},
		Devices: map[string][]string{
			"amp":      {"volume"},
			"streamer": {"source"},
		},
		StartupSequence: []CommandStep{
			step("amp", "power", map[string]any{"state": "on"}),
			step("amp", "input", map[string]any{"input": "optical"}),
			step("streamer", "power_on", nil),
		},
		ShutdownSequence: ShutdownSequence{
			Complete: []CommandStep{
				step("streamer", "power_off", nil),
				step("amp", "power", map[string]any{"state": "off"}),
			},
			Transition: []CommandStep{},
		},
	}
}

// tvScenario shares the amp with movieScenario on the same input.
func tvScenario() Definition {
	return Definition{
		ID:   "tv",
		Name: "TV",
		Roles: map[string]string{
			"volume": "amp",
		},
		Devices: map[string][]string{
			"amp": {"volume"},
			"tv":  {"display"},
		},
		StartupSequence: []CommandStep{
			step("tv", "power_on", nil),
			step("amp", "power", map[string]any{"state": "on"}),
			step("amp", "input", map[string]any{"input": "hdmi1"}),
		},
		ShutdownSequence: ShutdownSequence{
			Complete:   []CommandStep{step("tv", "power_off", nil)},
			Transition: []CommandStep{step("tv", "power_off", nil)},
		},
	}
}

func testFleet() *fakeDevices {
	return newFakeDevices("projector", "amp", "bluray", "streamer", "tv")
}
