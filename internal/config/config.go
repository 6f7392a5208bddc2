package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Logging struct {
		Mode string `yaml:"mode"`
	} `yaml:"logging"`
	Engine struct {
		LockTTL         string `yaml:"lockTTL"`
		CacheTTL        string `yaml:"cacheTTL"`
		DefaultMaxScore int    `yaml:"defaultMaxScore"`
	} `yaml:"engine"`
	Certificate struct {
		BaseURL  string `yaml:"baseURL"`
		Validity string `yaml:"validity"`
		LinkTTL  string `yaml:"linkTTL"`
		// SigningSecret keys the HMAC download links when no bucket is configured.
		SigningSecret   string `yaml:"signingSecret"`
		Bucket          string `yaml:"bucket"`
		CredentialsFile string `yaml:"credentialsFile"`
	} `yaml:"certificate"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
