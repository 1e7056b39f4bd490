package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Oracle  OracleConfig  `yaml:"oracle"`
	Channel ChannelConfig `yaml:"channel"`
	Poll    PollConfig    `yaml:"poll"`
	Result  ResultConfig  `yaml:"result"`
}

// OracleConfig locates the two oracle endpoints. WSURL is the persistent
// push channel; APIURL is the base URL for status polling and result fetch.
type OracleConfig struct {
	WSURL  string `yaml:"ws_url"`
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
}

type ChannelConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

type ResultConfig struct {
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			WSURL:  "ws://127.0.0.1:8080/ws",
			APIURL: "http://127.0.0.1:8080",
		},
		Channel: ChannelConfig{
			HandshakeTimeout: 5 * time.Second,
			ReconnectDelay:   3 * time.Second,
			PingInterval:     30 * time.Second,
			PongTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Second,
		},
		Poll: PollConfig{
			Interval:    4 * time.Second,
			MaxDuration: 5 * time.Minute,
		},
		Result: ResultConfig{
			RetryDelay: 2 * time.Second,
			Timeout:    10 * time.Second,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path, falling back to defaults when the
// file does not exist. Any other read or parse error is still returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}
