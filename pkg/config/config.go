package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Browser   BrowserConfig             `yaml:"browser"`
	Library   LibraryConfig             `yaml:"library"`
	Prompts   PromptsConfig             `yaml:"prompts"`
	Logs      LogsConfig                `yaml:"logs"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
}

type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	Enabled        bool   `yaml:"enabled"`
}

type BrowserConfig struct {
	Headless    bool `yaml:"headless"`
	ActionLimit int  `yaml:"action_limit"`
}

type LibraryConfig struct {
	Path string `yaml:"path"`
}

type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

type LogsConfig struct {
	Dir string `yaml:"dir"`
}

func LoadConfig(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "Loom"
	}
	if c.App.Workspace == "" {
		c.App.Workspace = "workspace"
	}
	if c.Browser.ActionLimit <= 0 {
		c.Browser.ActionLimit = 100
	}
	if c.Library.Path == "" {
		c.Library.Path = "loom.db"
	}
	if c.Prompts.Dir == "" {
		c.Prompts.Dir = "prompts"
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "logs"
	}
}

// Provider returns the named provider config when it is enabled.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	if ok && p.Enabled {
		return p, true
	}
	return ProviderConfig{}, false
}
