package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeoutSeconds = 90

type Config struct {
	AIProvider string `yaml:"ai_provider"`
	AIModel    string `yaml:"ai_model"`
	AIApply    string `yaml:"ai_apply"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GoogleAPIKey    string `yaml:"google_api_key"`
	DeepSeekAPIKey  string `yaml:"deepseek_api_key"`

	UnitSystem UnitSystem `yaml:"unit_system"`
	DBPath     string     `yaml:"db_path"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	OverridesPath        string `yaml:"overrides_path"`
	TemplateExampleCount int    `yaml:"template_example_count"`

	WatchDir       string `yaml:"watch_dir"`
	WatchOutputDir string `yaml:"watch_output_dir"`
	WatchSchedule  string `yaml:"watch_schedule"`

	SlackToken     string `yaml:"slack_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	Timezone string `yaml:"timezone"`

	CustomMappings []CustomMapping `yaml:"custom_mappings"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.AIProvider, "AI_PROVIDER")
	envOverride(&cfg.AIModel, "AI_MODEL")
	envOverride(&cfg.AIApply, "AI_APPLY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.GoogleAPIKey, "GOOGLE_API_KEY")
	envOverride(&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.OverridesPath, "OVERRIDES_PATH")
	envOverrideInt(&cfg.TemplateExampleCount, "TEMPLATE_EXAMPLE_COUNT")
	envOverride(&cfg.WatchDir, "WATCH_DIR")
	envOverride(&cfg.WatchOutputDir, "WATCH_OUTPUT_DIR")
	envOverride(&cfg.WatchSchedule, "WATCH_SCHEDULE")
	envOverride(&cfg.SlackToken, "SLACK_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if val := os.Getenv("UNIT_SYSTEM"); val != "" {
		cfg.UnitSystem = UnitSystem(val)
	}

	// Defaults
	if cfg.AIProvider == "" {
		cfg.AIProvider = "anthropic"
	}
	if cfg.AIApply == "" {
		cfg.AIApply = aiApplySample
	}
	if cfg.UnitSystem == "" {
		cfg.UnitSystem = UnitSystemMetric
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./converter.db"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.TemplateExampleCount == 0 {
		cfg.TemplateExampleCount = defaultTemplateExamples
	}
	if cfg.WatchSchedule == "" {
		cfg.WatchSchedule = "*/5 * * * *"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate
	if _, ok := lookupProvider(cfg.AIProvider); !ok {
		log.Fatalf("ai_provider must be one of %s, got '%s'", strings.Join(providerNames(), ", "), cfg.AIProvider)
	}
	if cfg.AIApply != aiApplySample && cfg.AIApply != aiApplyAll {
		log.Fatalf("ai_apply must be '%s' or '%s', got '%s'", aiApplySample, aiApplyAll, cfg.AIApply)
	}
	if !cfg.UnitSystem.Valid() {
		log.Fatalf("unit_system must be '%s' or '%s', got '%s'", UnitSystemMetric, UnitSystemImperial, cfg.UnitSystem)
	}
	if cfg.TemplateExampleCount < 0 {
		log.Fatalf("invalid template_example_count '%d': must be >= 0", cfg.TemplateExampleCount)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.OverridesPath != "" {
		if _, err := LoadCostTypeOverrides(cfg.OverridesPath); err != nil {
			log.Fatalf("invalid overrides_path '%s': %v", cfg.OverridesPath, err)
		}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		time.Local = loc
	}

	return cfg
}

// APIKeyFor returns the configured credential for a provider, empty when
// not set.
func (c Config) APIKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GoogleAPIKey
	case "deepseek":
		return c.DeepSeekAPIKey
	}
	return ""
}

func providerNames() []string {
	names := make([]string, len(providerCatalog))
	for i, desc := range providerCatalog {
		names[i] = desc.Name
	}
	return names
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
