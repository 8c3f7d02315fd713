package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/imagestudio/internal/history"
	"github.com/jo-hoe/imagestudio/internal/ledger"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Gemini struct {
	// BaseURL is overridable for tests; empty selects the public endpoint.
	BaseURL       string `yaml:"baseUrl"`
	APIKey        string `yaml:"apiKey"`
	GenerateModel string `yaml:"generateModel"`
	VisionModel   string `yaml:"visionModel"`
	EditModel     string `yaml:"editModel"`
}

type Tokens struct {
	Total int `yaml:"total"`
}

type History struct {
	Limit int `yaml:"limit"`
}

type ServiceConfig struct {
	Port     int      `yaml:"port"`
	Database Database `yaml:"database"`
	Gemini   Gemini   `yaml:"gemini"`
	Tokens   Tokens   `yaml:"tokens"`
	History  History  `yaml:"history"`
	// AutoEnhanceEffect names the local tint substituted when an auto
	// enhancement fails remotely.
	AutoEnhanceEffect string `yaml:"autoEnhanceEffect"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *ServiceConfig) {
	// The API key is usually injected through the environment rather than
	// checked into the config file.
	if envKey := os.Getenv("GEMINI_API_KEY"); envKey != "" {
		config.Gemini.APIKey = envKey
	}
	if config.Gemini.GenerateModel == "" {
		config.Gemini.GenerateModel = "imagen-4.0-generate-001"
	}
	if config.Gemini.VisionModel == "" {
		config.Gemini.VisionModel = "gemini-2.5-flash"
	}
	if config.Gemini.EditModel == "" {
		config.Gemini.EditModel = "gemini-2.5-flash-image"
	}
	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
		config.Database.ConnectionString = "imagestudio.db"
	}
	if config.Tokens.Total <= 0 {
		config.Tokens.Total = ledger.DefaultTotalTokens
	}
	if config.History.Limit <= 0 {
		config.History.Limit = history.DefaultLimit
	}
	if config.AutoEnhanceEffect == "" {
		config.AutoEnhanceEffect = "sunset"
	}
}

func validateConfig(config *ServiceConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d out of range", config.Port)
	}
	if config.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api key is not set (config key gemini.apiKey or env GEMINI_API_KEY)")
	}
	return nil
}
