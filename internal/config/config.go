package config

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout            = 30 * time.Second
	defaultCertDir            = "certs"
	defaultKeyType            = "ec256"
	defaultPropagationTimeout = 2 * time.Minute
	defaultPollingInterval    = 2 * time.Second
	defaultLogLevel           = "info"
	defaultLogEnv             = "prod"

	envPrefix = "IPV64_DNS01_"
)

type Config struct {
	Log     Log     `yaml:"log"`
	IPv64   IPv64   `yaml:"ipv64"`
	ACME    ACME    `yaml:"acme"`
	Metrics Metrics `yaml:"metrics"`
}

// IPv64 configures the record client. BearerToken wins over the
// credentials file when both are set.
type IPv64 struct {
	BearerToken string        `yaml:"bearerToken"`
	Credentials string        `yaml:"credentials"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ACME struct {
	Email              string        `yaml:"email"`
	Server             string        `yaml:"server"`
	Domains            []string      `yaml:"domains"`
	CertDir            string        `yaml:"certDir"`
	KeyType            string        `yaml:"keyType"`
	Nameservers        []string      `yaml:"nameservers"`
	PropagationTimeout time.Duration `yaml:"propagationTimeout"`
	PollingInterval    time.Duration `yaml:"pollingInterval"`
}

// Metrics.Listen serves /metrics while a long running command is active.
type Metrics struct {
	Textfile string `yaml:"textfile"`
	Listen   string `yaml:"listen"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	configFile := true
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Default().Debug("fail find config file, proceeding", "path", path)
		configFile = false
	}

	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if cfg.IPv64.BearerToken == "" && cfg.IPv64.Credentials != "" {
		token, err := LoadCredentials(cfg.IPv64.Credentials)
		if err != nil {
			return nil, err
		}
		cfg.IPv64.BearerToken = token
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.IPv64.Timeout == 0 {
		cfg.IPv64.Timeout = defaultTimeout
	}
	if cfg.ACME.CertDir == "" {
		cfg.ACME.CertDir = defaultCertDir
	}
	if cfg.ACME.KeyType == "" {
		cfg.ACME.KeyType = defaultKeyType
	}
	if cfg.ACME.PropagationTimeout == 0 {
		cfg.ACME.PropagationTimeout = defaultPropagationTimeout
	}
	if cfg.ACME.PollingInterval == 0 {
		cfg.ACME.PollingInterval = defaultPollingInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
}

// Override from environment if set
func applyEnv(cfg *Config) {
	if token := getEnv("BEARER_TOKEN"); token != "" {
		cfg.IPv64.BearerToken = token
	}
	if creds := getEnv("CREDENTIALS"); creds != "" {
		cfg.IPv64.Credentials = creds
	}
	if timeout := getEnv("TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.IPv64.Timeout = d
		} else {
			slog.Default().Warn("fail parse timeout to duration from string", "timeout", timeout, "error", err)
		}
	}
	if email := getEnv("ACME_EMAIL"); email != "" {
		cfg.ACME.Email = email
	}
	if server := getEnv("ACME_SERVER"); server != "" {
		cfg.ACME.Server = server
	}
	if domains := getEnv("ACME_DOMAINS"); domains != "" {
		cfg.ACME.Domains = splitList(domains)
	}
	if certDir := getEnv("CERT_DIR"); certDir != "" {
		cfg.ACME.CertDir = certDir
	}
	if keyType := getEnv("KEY_TYPE"); keyType != "" {
		cfg.ACME.KeyType = keyType
	}
	if ns := getEnv("NAMESERVERS"); ns != "" {
		cfg.ACME.Nameservers = splitList(ns)
	}
	if pt := getEnv("PROPAGATION_TIMEOUT"); pt != "" {
		if d, err := time.ParseDuration(pt); err == nil {
			cfg.ACME.PropagationTimeout = d
		} else {
			slog.Default().Warn("fail parse propagation timeout to duration from string", "timeout", pt, "error", err)
		}
	}
	if pi := getEnv("POLLING_INTERVAL"); pi != "" {
		if d, err := time.ParseDuration(pi); err == nil {
			cfg.ACME.PollingInterval = d
		} else {
			slog.Default().Warn("fail parse polling interval to duration from string", "interval", pi, "error", err)
		}
	}
	if textfile := getEnv("METRICS_TEXTFILE"); textfile != "" {
		cfg.Metrics.Textfile = textfile
	}
	if listen := getEnv("METRICS_LISTEN"); listen != "" {
		cfg.Metrics.Listen = listen
	}
	if loglevel := getEnv("LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := getEnv("LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
