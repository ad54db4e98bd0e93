package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the YAML file at path when it exists and lets the environment
// override it. An empty path or a missing file falls back to env only.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, cfg.validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *AppConfig) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if strings.TrimSpace(c.SuperAdminRole) == "" {
		return errors.New("super_admin_role must not be empty")
	}
	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return errors.New("tls_cert and tls_key are required when tls is enabled")
	}
	return nil
}

// Usage renders the env variable help text.
func Usage() string {
	var cfg AppConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
