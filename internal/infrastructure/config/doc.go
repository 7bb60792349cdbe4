// Package config handles loading and validating AV Bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file placed next to the config file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT and Valkey passwords, InfluxDB tokens) should be
//     set via environment variables or the .env file, never committed in YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Definitions.ScenariosDir)
package config
