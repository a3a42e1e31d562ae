package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// Effective is the resolved configuration after merging file, environment
// and flags (flags win over env, env wins over file).
type Effective struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env", or "config"
}

// ParseFlags parses command-line flags and records which were set
// explicitly.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv overlays ECHOCLUB_* environment variables onto cfg and reports
// whether any were present.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("ECHOCLUB_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("ECHOCLUB_DB_PATH"); v != "" {
		used = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("ECHOCLUB_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ECHOCLUB_CORS_ORIGINS"); v != "" {
		used = true
		var origins []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				origins = append(origins, s)
			}
		}
		cfg.Security.CORS.AllowedOrigins = origins
	}
	if v := os.Getenv("ECHOCLUB_RETENTION_ENABLED"); v != "" {
		used = true
		cfg.Retention.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ECHOCLUB_RETENTION_CRON"); v != "" {
		used = true
		cfg.Retention.Cron = v
	}
	if v := os.Getenv("ECHOCLUB_RETENTION_PERIOD"); v != "" {
		used = true
		cfg.Retention.Period = v
	}
	return used
}

// LoadEffective merges the config file (if present), environment overrides
// and flags into the final effective configuration.
func LoadEffective(flags Flags) (Effective, error) {
	cfg := &Config{}
	source := "config"
	if c, err := Load(flags.Config); err == nil {
		cfg = c
	} else if !os.IsNotExist(err) {
		return Effective{}, err
	}

	if applyEnv(cfg) {
		source = "env"
	}

	addr := cfg.Addr()
	dbPath := cfg.Server.DBPath
	if dbPath == "" {
		dbPath = flags.DB
	}
	if flags.Set["addr"] {
		addr = flags.Addr
		source = "flags"
	}
	if flags.Set["db"] {
		dbPath = flags.DB
		source = "flags"
	}

	return Effective{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}
