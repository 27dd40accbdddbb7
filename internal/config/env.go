package config

import (
	"sort"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CDPDEBUG_"

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment variable to a Config.
type envSetter func(c *Config, value string)

// envMapping maps environment variable suffixes to settings.
var envMapping = map[string]envSetter{
	"ENDPOINT":        func(c *Config, v string) { c.Endpoint = v },
	"TARGET":          func(c *Config, v string) { c.Target = v },
	"LOG_LEVEL":       func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) },
	"LOG_FILE":        func(c *Config, v string) { c.Logging.File = v },
	"REQUEST_TIMEOUT": func(c *Config, v string) { c.Session.RequestTimeout = v },
	"EVENT_LOG_SIZE": func(c *Config, v string) {
		// Unparseable sizes become -1 so Validate reports them.
		n, err := strconv.Atoi(v)
		if err != nil {
			n = -1
		}
		c.Session.EventLogSize = n
	},
	"HISTORY_FILE": func(c *Config, v string) { c.Shell.HistoryFile = v },
	"PROMPT":       func(c *Config, v string) { c.Shell.Prompt = v },
}

// EnvVars returns the sorted names of the recognized environment variables.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for suffix := range envMapping {
		names = append(names, EnvPrefix+suffix)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides settings from CDPDEBUG_* environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	for suffix, set := range envMapping {
		if v, ok := lookup(EnvPrefix + suffix); ok {
			set(c, v)
		}
	}
}
