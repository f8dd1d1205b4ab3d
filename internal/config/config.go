// Package config loads settings from settings/config.yaml, secrets from
// settings/secrets/*.yaml, and environment overrides (optionally from .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tabletop-agent/internal/agent"
	"tabletop-agent/internal/imagegen"
	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/worker"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// AgentConfig identifies the agent and tunes the turn pipeline
type AgentConfig struct {
	ID                 string `yaml:"id"`
	CompactionWindow   int    `yaml:"compaction_window"`
	SummaryTokenBudget int    `yaml:"summary_token_budget"`
	NarrativeMaxTokens int    `yaml:"narrative_max_tokens"`
}

// ModelsConfig selects the language models
type ModelsConfig struct {
	Query             string   `yaml:"query"`
	QueryMaxTokens    int      `yaml:"query_max_tokens"`
	Narrative         string   `yaml:"narrative"`
	NarrativeProvider string   `yaml:"narrative_provider"`
	RulebookStores    []string `yaml:"rulebook_stores"`
}

// ImageConfig configures the ComfyUI backend. Image generation is off when
// ComfyURL is empty.
type ImageConfig struct {
	ComfyURL     string                 `yaml:"comfy_url"`
	WorkflowPath string                 `yaml:"workflow_path"`
	Nodes        imagegen.WorkflowNodes `yaml:"nodes"`
	PollInterval time.Duration          `yaml:"poll_interval"`
	Timeout      time.Duration          `yaml:"timeout"`
	PixelBudget  int                    `yaml:"pixel_budget"`
}

// Enabled reports whether an image backend is configured
func (c ImageConfig) Enabled() bool {
	return c.ComfyURL != ""
}

// WorkerConfig sizes the per-room queues
type WorkerConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Config holds all application configuration
type Config struct {
	SettingsDir string       `yaml:"-"`
	DBPath      string       `yaml:"db_path"`
	ListenAddr  string       `yaml:"listen_addr"`
	Agent       AgentConfig  `yaml:"agent"`
	Models      ModelsConfig `yaml:"models"`
	Image       ImageConfig  `yaml:"image"`
	Worker      WorkerConfig `yaml:"worker"`
	OpenAI      OpenAIConfig `yaml:"-"`
	Gemini      GeminiConfig `yaml:"-"`
}

// Default returns the configuration used when no file overrides it
func Default() *Config {
	return &Config{
		SettingsDir: "settings",
		DBPath:      "data/app.db",
		ListenAddr:  ":8080",
		Agent: AgentConfig{
			CompactionWindow:   logic.DefaultCompactionWindow,
			SummaryTokenBudget: logic.DefaultSummaryTokenBudget,
			NarrativeMaxTokens: agent.DefaultNarrativeMaxTokens,
		},
		Models: ModelsConfig{
			NarrativeProvider: ProviderOpenAI,
		},
		Image: ImageConfig{
			Nodes:       imagegen.DefaultWorkflowNodes(),
			PixelBudget: imagegen.DefaultPixelBudget,
		},
		Worker: WorkerConfig{
			QueueSize:   worker.DefaultQueueSize,
			IdleTimeout: worker.DefaultIdleTimeout,
		},
	}
}

// Load loads configuration from .env, the config file, secrets and the
// environment. An empty configPath means <SETTINGS_DIR>/config.yaml, which
// may be absent. Load does not validate; commands that need the full
// configuration call Validate.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if dir := os.Getenv("SETTINGS_DIR"); dir != "" {
		cfg.SettingsDir = dir
	}

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(cfg.SettingsDir, "config.yaml")
	}
	if err := loadYAML(configPath, cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	if err := loadSecrets(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return errors.New("agent.id is required")
	}
	if c.Agent.CompactionWindow <= 0 {
		return fmt.Errorf("agent.compaction_window must be positive, got %d", c.Agent.CompactionWindow)
	}
	if c.Agent.SummaryTokenBudget <= 0 {
		return fmt.Errorf("agent.summary_token_budget must be positive, got %d", c.Agent.SummaryTokenBudget)
	}
	if c.OpenAI.APIKey == "" {
		return errors.New("OpenAI API key is required")
	}

	switch c.Models.NarrativeProvider {
	case ProviderOpenAI:
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return errors.New("Gemini API key is required for the gemini narrative provider")
		}
	default:
		return fmt.Errorf("unknown narrative provider %q", c.Models.NarrativeProvider)
	}

	if c.Image.Enabled() && c.Image.WorkflowPath == "" {
		return errors.New("image.workflow_path is required when image.comfy_url is set")
	}
	return nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"DB_PATH", &cfg.DBPath},
		{"LISTEN_ADDR", &cfg.ListenAddr},
		{"AGENT_ID", &cfg.Agent.ID},
		{"NARRATIVE_PROVIDER", &cfg.Models.NarrativeProvider},
		{"COMFY_URL", &cfg.Image.ComfyURL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
	cfg.Models.NarrativeProvider = strings.ToLower(cfg.Models.NarrativeProvider)
}

// loadSecrets reads the secrets files; API keys in the environment win
func loadSecrets(cfg *Config) error {
	secretsDir := filepath.Join(cfg.SettingsDir, "secrets")

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	} else {
		openaiCfg, err := loadOpenAIConfig(filepath.Join(secretsDir, "openai.yaml"))
		switch {
		case err == nil:
			cfg.OpenAI = *openaiCfg
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to load OpenAI secrets: %w", err)
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
		return nil
	}
	err := loadYAML(filepath.Join(secretsDir, "gemini.yaml"), &cfg.Gemini)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load Gemini secrets: %w", err)
	}
	return nil
}

// loadOpenAIConfig loads OpenAI configuration from a YAML file
func loadOpenAIConfig(path string) (*OpenAIConfig, error) {
	var cfg OpenAIConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
