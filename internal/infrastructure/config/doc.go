// Package config handles loading and validating Observatory Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Site-specific timing constants live here: spectrograph flush/readout
// overheads, per-device command timeouts, lamp warm-up times, default
// exposure times per design mode, and the auto-pilot preload lead time.
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
