// Package config loads the server configuration from a YAML file, applies
// PARAKARRY_* environment overrides on top, and exposes the merged result.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
		// MaxBodyBytes caps API request bodies; 0 means the 1MB default.
		MaxBodyBytes SizeBytes `yaml:"max_body_bytes"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Gateway struct {
		BridgeURL       string `yaml:"bridge_url"`
		Token           string `yaml:"token"`
		GuildID         string `yaml:"guild_id"`
		AppealGuildID   string `yaml:"appeal_guild_id"`
		CategoryID      string `yaml:"category_id"`
		AdminChannelID  string `yaml:"admin_channel_id"`
		ModLogChannelID string `yaml:"modlog_channel_id"`
		LogURL          string `yaml:"log_url"`
	} `yaml:"gateway"`
	Mail struct {
		ReplyMaxLen int `yaml:"reply_max_len"`
		// CancelOnInternal extends cancel-on-activity to staff chatter.
		CancelOnInternal bool `yaml:"cancel_on_internal"`
		// ScheduleReject makes a second schedule-close fail instead of
		// replacing the pending one.
		ScheduleReject  bool   `yaml:"schedule_reject"`
		LeaveCloseDelay string `yaml:"leave_close_delay"`
	} `yaml:"mail"`
	Events struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"events"`
	Security struct {
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		IPWhitelist []string `yaml:"ip_whitelist"`
		APIKeys     struct {
			Backend []string `yaml:"backend"`
			Admin   []string `yaml:"admin"`
		} `yaml:"api_keys"`
	} `yaml:"security"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Retention struct {
		Enabled    bool     `yaml:"enabled"`
		Cron       string   `yaml:"cron"`
		Period     string   `yaml:"period"`
		BatchSize  int      `yaml:"batch_size"`
		BatchSleep Duration `yaml:"batch_sleep"`
		DryRun     bool     `yaml:"dry_run"`
		MinPeriod  string   `yaml:"min_period"`
	} `yaml:"retention"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and PARAKARRY_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("PARAKARRY_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEnvOverrides applies environment overrides onto cfg and reports
// whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	setStr := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			envUsed = true
			*dst = v
		}
	}

	if v := os.Getenv("PARAKARRY_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		setStr("PARAKARRY_ADDRESS", &cfg.Server.Address)
		if port := os.Getenv("PARAKARRY_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}

	setStr("PARAKARRY_DB_PATH", &cfg.Storage.DBPath)
	setStr("PARAKARRY_BRIDGE_URL", &cfg.Gateway.BridgeURL)
	setStr("PARAKARRY_GATEWAY_TOKEN", &cfg.Gateway.Token)
	setStr("PARAKARRY_GUILD_ID", &cfg.Gateway.GuildID)
	setStr("PARAKARRY_APPEAL_GUILD_ID", &cfg.Gateway.AppealGuildID)
	setStr("PARAKARRY_CATEGORY_ID", &cfg.Gateway.CategoryID)
	setStr("PARAKARRY_ADMIN_CHANNEL_ID", &cfg.Gateway.AdminChannelID)
	setStr("PARAKARRY_MODLOG_CHANNEL_ID", &cfg.Gateway.ModLogChannelID)
	setStr("PARAKARRY_LOG_URL", &cfg.Gateway.LogURL)
	setStr("PARAKARRY_TLS_CERT", &cfg.Server.TLS.CertFile)
	setStr("PARAKARRY_TLS_KEY", &cfg.Server.TLS.KeyFile)

	if v := os.Getenv("PARAKARRY_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("PARAKARRY_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("PARAKARRY_IP_WHITELIST"); v != "" {
		envUsed = true
		cfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("PARAKARRY_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("PARAKARRY_API_ADMIN_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Admin = parseList(v)
	}
	return envUsed
}

// LoadEffective loads config from path and applies environment overrides.
// A missing file is not fatal; env and defaults carry the day.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}
