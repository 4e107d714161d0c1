package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFile = "config.yml"

// WebDAVServer is a named remote transcripts can be uploaded to.
type WebDAVServer struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	// Dir is the remote directory transcripts are placed under.
	Dir string `yaml:"dir,omitempty"`
}

// ServerConfig configures the read-only history API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config holds user-level defaults. Flags override everything here.
type Config struct {
	Model        string `yaml:"model"`
	Device       string `yaml:"device"`
	Format       string `yaml:"format"`
	Language     string `yaml:"language"`
	Workers      int    `yaml:"workers"`
	OutputDir    string `yaml:"output_dir"`
	SkipExisting bool   `yaml:"skip_existing"`

	// WhisperBinary and FFmpeg override PATH lookup for the external tools.
	WhisperBinary string `yaml:"whisper_binary,omitempty"`
	FFmpeg        string `yaml:"ffmpeg,omitempty"`
	// ModelsDir overrides the default model storage location.
	ModelsDir string `yaml:"models_dir,omitempty"`

	// CUDAErrorKeywords extends the substrings that mark an inference
	// failure as GPU-related. Empty keeps the built-in list.
	CUDAErrorKeywords []string `yaml:"cuda_error_keywords,omitempty"`

	WebDAVServers map[string]WebDAVServer `yaml:"webdav_servers,omitempty"`

	Server ServerConfig `yaml:"server,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Model:     "base.en",
		Device:    "auto",
		Format:    "txt",
		Language:  "auto",
		Workers:   1,
		OutputDir: "transcripts",
		Server:    ServerConfig{Port: 8080},
	}
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "batchscribe"), nil
}

// SavePath returns the config file location. Errors resolve to a relative
// path so display code never fails.
func SavePath() string {
	dir, err := ConfigDir()
	if err != nil {
		return configFile
	}
	return filepath.Join(dir, configFile)
}

// Exists reports whether a config file is present.
func Exists() bool {
	_, err := os.Stat(SavePath())
	return err == nil
}

// Load reads the config file, layering it over defaults so missing keys
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the user config, falling back to defaults when the
// file is missing or unreadable.
func LoadOrDefault() *Config {
	cfg, err := Load(SavePath())
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes the config to its default location, creating the directory
// if needed.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFile), data, 0o600)
}

// GetWebDAVServer returns the named remote, or nil.
func (c *Config) GetWebDAVServer(name string) *WebDAVServer {
	if server, ok := c.WebDAVServers[name]; ok {
		return &server
	}
	return nil
}

// SetWebDAVServer adds or replaces a remote.
func (c *Config) SetWebDAVServer(name string, server WebDAVServer) {
	if c.WebDAVServers == nil {
		c.WebDAVServers = make(map[string]WebDAVServer)
	}
	c.WebDAVServers[name] = server
}

// DeleteWebDAVServer removes a remote.
func (c *Config) DeleteWebDAVServer(name string) {
	delete(c.WebDAVServers, name)
}
