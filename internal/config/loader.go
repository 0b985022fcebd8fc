// ABOUTME: Layered configuration loading with koanf
// ABOUTME: Precedence is flags > PINPOINT_ env vars > yaml file > defaults

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read by Load. A double underscore
// separates nesting levels: PINPOINT_SERVER__PORT sets server.port.
const EnvPrefix = "PINPOINT_"

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"static-dir":   "server.static_dir",
	"metrics-port": "metrics.port",
	"store":        "store.path",
	"data-dir":     "store.data_dir",
	"watch":        "store.watch",
	"log-level":    "log.level",
	"pretty":       "log.pretty",
	"verbose":      "verbose",
}

// findConfigFile returns the config file to use.
// Priority: explicit path > pinpoint.yaml > pinpoint.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"pinpoint.yaml", "pinpoint.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// splitHosts flattens comma-separated entries, as set from a single env var
func splitHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, h := range strings.Split(item, ",") {
			if h = strings.TrimSpace(h); h != "" {
				out = append(out, h)
			}
		}
	}
	return out
}

// Load builds the configuration from defaults, the config file, environment
// variables and explicitly set flags. flags may be nil. The returned string is
// the config file used, if any.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: PINPOINT_WIKIDATA__USER_AGENT -> wikidata.user_agent
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}
	cfg.MapCache.AllowedHosts = splitHosts(cfg.MapCache.AllowedHosts)
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, used, nil
}
