package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Game    GameConfig    `yaml:"game"`
	Console ConsoleConfig `yaml:"console"`
	Store   StoreConfig   `yaml:"store"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GameConfig describes how the managed game server is installed and run.
// InstallCmd and StartCmd are argv vectors, not shell strings.
type GameConfig struct {
	Name        string        `yaml:"name"`
	WorkingDir  string        `yaml:"working_dir"`
	InstallCmd  []string      `yaml:"install_cmd"`
	StartCmd    []string      `yaml:"start_cmd"`
	StopCmd     string        `yaml:"stop_cmd"`
	StopGrace   time.Duration `yaml:"stop_grace"`
	DebugOnCmd  string        `yaml:"debug_on_cmd"`
	DebugOffCmd string        `yaml:"debug_off_cmd"`
}

type ConsoleConfig struct {
	BufferLines       int           `yaml:"buffer_lines"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no config file entry overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Game: GameConfig{
			Name:        "game",
			StopCmd:     "stop",
			StopGrace:   15 * time.Second,
			DebugOnCmd:  "debug on",
			DebugOffCmd: "debug off",
		},
		Console: ConsoleConfig{
			BufferLines:       1000,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Store: StoreConfig{
			Path: "forgepanel.db",
		},
	}
}
