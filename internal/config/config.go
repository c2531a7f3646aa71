package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SSH   SSHConfig   `yaml:"ssh"`
	Cloud CloudConfig `yaml:"cloud"`
	Tools ToolsConfig `yaml:"tools"`
	Sync  SyncConfig  `yaml:"sync"`
	API   APIConfig   `yaml:"api"`
}

type SSHConfig struct {
	ConfigPath string `yaml:"configPath"`
	KeyDir     string `yaml:"keyDir"`
	User       string `yaml:"user"`
}

type CloudConfig struct {
	Project string `yaml:"project"`
	Zone    string `yaml:"zone"`
}

type ToolsConfig struct {
	Dir string `yaml:"dir"`
}

type SyncConfig struct {
	// IntervalSeconds controls the daemon's periodic resync. 0 disables it.
	IntervalSeconds int `yaml:"intervalSeconds"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		SSH: SSHConfig{
			ConfigPath: filepath.Join(home, ".ssh", "config"),
			KeyDir:     filepath.Join(home, ".ssh"),
			User:       "nebula",
		},
		Tools: ToolsConfig{
			Dir: filepath.Join(BaseDir(), "tools"),
		},
		Sync: SyncConfig{
			IntervalSeconds: 300,
		},
		API: APIConfig{
			Port: 8642,
		},
	}
}

func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nebulactl")
}

func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// MappingsPath is the instance-to-host mapping store file.
func MappingsPath() string {
	return filepath.Join(BaseDir(), "mappings.json")
}

// AuditPath is the sqlite audit trail database.
func AuditPath() string {
	return filepath.Join(BaseDir(), "audit.db")
}

func Load() (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func Save(cfg Config) error {
	if err := os.MkdirAll(BaseDir(), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0644)
}

func EnsureDirs() error {
	dirs := []string{
		BaseDir(),
		filepath.Join(BaseDir(), "tools"),
		filepath.Join(BaseDir(), "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}
