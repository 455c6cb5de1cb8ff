// Package config handles loading and validating the MyHOME bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MYHOME_*)
//   - Validation of required fields, collecting every problem
//   - Default value handling
//
// Security Considerations:
//   - The gateway OPEN password and MQTT/InfluxDB credentials should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Host)
package config
