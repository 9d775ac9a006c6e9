// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package config provides layered configuration loading for Weekline using koanf.
//
// Configuration is loaded in three layers, later layers overriding earlier ones:
//
//  1. Struct defaults (defaultConfig)
//  2. YAML file: $WEEKLINE_CONFIG, ./weekline.yaml, ./weekline.yml, /etc/weekline/config.yaml
//  3. Environment variables with the WEEKLINE_ prefix (see envMappings)
//
// Example file:
//
//	cache:
//	  path: /var/lib/weekline/cache
//	  max_age: 30m
//	loader:
//	  fetch_timeout: 5s
//	  max_goals_per_week: 6
//	scheduler:
//	  max_attempts: 3
//	logging:
//	  level: info
//	  format: json
//
// The loaded Config is validated before it is returned and is then passed
// explicitly to each component's constructor; nothing reads configuration
// from globals.
package config
