// Package config loads cdpdebug configuration.
//
// Settings are resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command line flags      │  ← applied by the caller
//	├─────────────────────────────┤
//	│  3. Environment variables   │  ← CDPDEBUG_*
//	├─────────────────────────────┤
//	│  2. Config file             │  ← ~/.config/cdpdebug/config.toml
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │
//	└─────────────────────────────┘
//
// # File Format
//
//	endpoint = "http://localhost:9222"
//	target   = "localhost:3000"
//
//	[logging]
//	level = "debug"
//	file  = "~/.cache/cdpdebug.log"
//
//	[session]
//	request_timeout = "30s"
//	event_log_size  = 256
//
//	[shell]
//	history_file = "~/.cdpdebug_history"
//	prompt       = "(cdp) "
//
// Files ending in .yaml or .yml are read as YAML with the same keys:
//
//	endpoint: http://localhost:9222
//	logging:
//	  level: debug
//
// # Live Reload
//
// Watch reloads the file whenever it changes and hands the result to a
// callback:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
//	    }
//	})
package config
