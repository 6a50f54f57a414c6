package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Web       WebConfig       `yaml:"web"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Editor    EditorConfig    `yaml:"editor"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Judge     JudgeConfig     `yaml:"judge"`
	Swarm     SwarmConfig     `yaml:"swarm"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Vault     VaultConfig     `yaml:"vault"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// EditorConfig describes the code-editing agent CLI invocation.
type EditorConfig struct {
	Command string        `yaml:"command"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	BaseDir string        `yaml:"base_dir"`
	APIKey  string        `yaml:"api_key"`
}

type RendererConfig struct {
	Headless       bool          `yaml:"headless"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	NavTimeout     time.Duration `yaml:"nav_timeout"`
	ScratchDir     string        `yaml:"scratch_dir"`
	CookieName     string        `yaml:"cookie_name"`
}

type JudgeConfig struct {
	APIKey      string `yaml:"api_key"`
	VisionModel string `yaml:"vision_model"`
	TextModel   string `yaml:"text_model"`
}

type SwarmConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	Concurrency int `yaml:"concurrency"`
}

type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		Store: StoreConfig{
			Path: "data/swarmd.db",
		},
		NATS: NATSConfig{
			Port: 4222,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Editor: EditorConfig{
			Command: "claude",
			Timeout: 10 * time.Minute,
		},
		Renderer: RendererConfig{
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			NavTimeout:     30 * time.Second,
			CookieName:     "session",
		},
		Judge: JudgeConfig{
			VisionModel: "gemini-2.5-flash",
			TextModel:   "gemini-2.5-flash",
		},
		Swarm: SwarmConfig{
			MaxRetries:  3,
			Concurrency: 4,
		},
		Artifacts: ArtifactsConfig{
			Dir: "data/artifacts",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("SWARMD_CONFIG")
	if path == "" {
		path = "config/swarmd.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWARMD_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("SWARMD_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Judge.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Editor.APIKey = v
	}
	if v := os.Getenv("SWARMD_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("SWARMD_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SWARMD_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("SWARMD_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SWARMD_PROJECTS_BASE"); v != "" {
		cfg.Editor.BaseDir = v
	}
	if v := os.Getenv("SWARMD_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}

func (c *Config) validate() error {
	if c.Swarm.MaxRetries < 1 {
		return fmt.Errorf("swarm.max_retries must be >= 1, got %d", c.Swarm.MaxRetries)
	}
	if c.Swarm.Concurrency < 1 {
		return fmt.Errorf("swarm.concurrency must be >= 1, got %d", c.Swarm.Concurrency)
	}
	if c.Editor.Command == "" {
		return fmt.Errorf("editor.command must not be empty")
	}
	return nil
}
