// Package config handles loading and validating Flora Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FLORA_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (JWT secret, broker password, InfluxDB token) should be
// set via environment variables rather than committed to the config file.
// Third-party API keys are never read from here; config only names the
// secret IDs that the secrets provider resolves at runtime.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Readings.MaxPageSize)
package config
