package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds derived runtime values that other packages may query
// at runtime (populated during startup after merging env+file).
type RuntimeConfig struct {
	BackendKeys map[string]struct{}
	SigningKeys map[string]struct{}
}

var (
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
)

// SetRuntime sets the canonical runtime config used by the running server.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

// GetBackendKeys returns a copy of configured backend keys.
func GetBackendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := map[string]struct{}{}
	if runtimeCfg == nil || runtimeCfg.BackendKeys == nil {
		return out
	}
	for k := range runtimeCfg.BackendKeys {
		out[k] = struct{}{}
	}
	return out
}

// GetSigningKeys returns a copy of configured signing keys. These secrets
// back both end-user identity signatures and widget session tokens.
func GetSigningKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := map[string]struct{}{}
	if runtimeCfg == nil || runtimeCfg.SigningKeys == nil {
		return out
	}
	for k := range runtimeCfg.SigningKeys {
		out[k] = struct{}{}
	}
	return out
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &c, nil
}

// EffectiveConfigResult holds the merged configuration plus its provenance
// (which source won: flags, env, or the config file).
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseCommandFlags registers and parses the standard command flags and
// reports which were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	a := flag.String("addr", ":8080", "listen address")
	d := flag.String("db", "./data", "path to pebble database directory")
	c := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *a, *d, *c, setFlags
}

// ResolveConfigPath picks the config file path: the flag wins when
// explicitly set, then ASSISTDB_CONFIG, then ./config.yaml if present.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := strings.TrimSpace(os.Getenv("ASSISTDB_CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return flagPath
}

// LoadEffective merges the config file (if present) with ASSISTDB_* env
// overrides and returns the effective config plus whether env contributed.
func LoadEffective(path string) (EffectiveConfigResult, bool, error) {
	var res EffectiveConfigResult
	cfg := &Config{}
	source := "default"
	if path != "" {
		if c, err := Load(path); err == nil {
			cfg = c
			source = "config"
		} else if !os.IsNotExist(err) {
			return res, false, err
		}
	}
	envUsed := applyEnv(cfg)
	if envUsed && source == "default" {
		source = "env"
	}
	res.Config = cfg
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Server.DBPath
	if res.DBPath == "" {
		res.DBPath = "./data"
	}
	res.Source = source
	return res, envUsed, nil
}

// applyEnv overlays ASSISTDB_* environment variables onto cfg and reports
// whether any were present.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("ASSISTDB_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err == nil {
			cfg.Server.Address = host
			if p, perr := strconv.Atoi(port); perr == nil {
				cfg.Server.Port = p
			}
			used = true
		}
	}
	if v := os.Getenv("ASSISTDB_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
		used = true
	}
	if v := os.Getenv("ASSISTDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	if v := os.Getenv("ASSISTDB_BACKEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Backend = append(cfg.Security.APIKeys.Backend, splitCSV(v)...)
		used = true
	}
	if v := os.Getenv("ASSISTDB_FRONTEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Frontend = append(cfg.Security.APIKeys.Frontend, splitCSV(v)...)
		used = true
	}
	if v := os.Getenv("ASSISTDB_ADMIN_KEYS"); v != "" {
		cfg.Security.APIKeys.Admin = append(cfg.Security.APIKeys.Admin, splitCSV(v)...)
		used = true
	}
	if v := os.Getenv("ASSISTDB_ALLOWED_ORIGINS"); v != "" {
		cfg.Security.CORS.AllowedOrigins = append(cfg.Security.CORS.AllowedOrigins, splitCSV(v)...)
		used = true
	}
	if v := os.Getenv("ASSISTDB_EVENTS_URL"); v != "" {
		cfg.Events.URL = v
		cfg.Events.Enabled = true
		used = true
	}
	return used
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
