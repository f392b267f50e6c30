// ABOUTME: Configuration loading for the cyborg-chat terminal client
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
}

type GatewayConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// configPath returns the client config path.
// Priority: CYBORG_CHAT_CONFIG env var > XDG_CONFIG_HOME/cyborg/chat.toml > ~/.config/cyborg/chat.toml
func configPath() string {
	if envPath := os.Getenv("CYBORG_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cyborg", "chat.toml")
}

// loadConfig reads the client config, expanding environment variables.
// A missing file is not an error; defaults apply and CYBORG_TOKEN can
// still supply the session token.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		Gateway: GatewayConfig{URL: "http://localhost:8080"},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()
	if cfg.Gateway.URL == "" {
		return nil, fmt.Errorf("gateway.url must not be empty")
	}
	cfg.Gateway.URL = strings.TrimSuffix(cfg.Gateway.URL, "/")
	return cfg, nil
}

// applyEnv lets environment variables win over file values.
func (c *Config) applyEnv() {
	if token := os.Getenv("CYBORG_TOKEN"); token != "" {
		c.Gateway.Token = token
	}
	if url := os.Getenv("CYBORG_GATEWAY_URL"); url != "" {
		c.Gateway.URL = url
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} references with environment values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		return os.Getenv(name)
	})
}
