// Package config handles loading and validating confman's own settings.
//
// This is the tool's configuration, not the configuration documents the
// tool manages: where the snapshot store lives, how long to wait for the
// store lock, which fields are sensitive, and how to log.
//
// This package manages:
//   - Loading settings from a YAML file
//   - Overriding with CONFMAN_* environment variables
//   - Default value handling
//   - Validation of required fields
//
// Security Considerations:
//   - The vault passphrase is never read from this file; it comes from
//     the environment variable or key file the settings point at.
//   - The settings file should have restricted permissions (0600) when
//     it names a key file.
//
// Usage:
//
//	cfg, err := config.Load("confman.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Store.Path)
package config
