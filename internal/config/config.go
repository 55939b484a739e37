// Package config loads server configuration from a YAML file with sane
// defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Agent  AgentConfig  `yaml:"agent"`
	UI     UIConfig     `yaml:"ui"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DataConfig struct {
	DBPath        string `yaml:"db_path"`
	TranscriptDir string `yaml:"transcript_dir"`
}

type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Model   string   `yaml:"model"`
	Workdir string   `yaml:"workdir"`
}

type UIConfig struct {
	AskTimeout time.Duration `yaml:"ask_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Data: DataConfig{
			DBPath:        "data/sessions.db",
			TranscriptDir: "data/transcripts",
		},
		Agent: AgentConfig{
			Command: "agent",
			Model:   "default",
		},
		UI: UIConfig{
			AskTimeout: 2 * time.Minute,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
