package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/deepchat-cli/deepchat/internal/deepseek"
)

var help = map[string]string{
	"model":         "Model to use (deepseek-chat, deepseek-reasoner, or an alias).",
	"base-url":      "Base URL of the chat completions API.",
	"api-key-env":   "Environment variable holding the API key.",
	"system":        "System prompt for a new conversation.",
	"no-stream":     "Wait for the complete response instead of streaming it.",
	"cache-path":    "Where conversations are saved.",
	"no-cache":      "Disables saving of the conversation.",
	"continue":      "Continue from the last response or a given save title.",
	"continue-last": "Continue from the last response.",
	"title":         "Saves the current conversation with the given title.",
	"list":          "Lists saved conversations.",
	"show":          "Show a saved conversation with the given title or ID.",
	"delete":        "Deletes a saved conversation with the given title or ID.",
	"debug":         "Enable debug logging.",
	"settings":      "Print the settings file path and exit.",
	"version":       "Show version and exit.",
}

// Model represents an upstream model and its aliases.
type Model struct {
	Name    string
	Aliases []string `yaml:"aliases"`
}

// Models is a type alias to allow custom YAML decoding.
type Models map[string]Model

// UnmarshalYAML fills in each model's name from its map key.
func (ms *Models) UnmarshalYAML(node *yaml.Node) error {
	*ms = Models{}
	for i := 0; i < len(node.Content); i += 2 {
		var m Model
		if err := node.Content[i+1].Decode(&m); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		m.Name = node.Content[i].Value
		(*ms)[m.Name] = m
	}
	return nil
}

// Config holds the main configuration and is mapped to the YAML
// settings file, with DEEPCHAT_* environment overrides on top.
type Config struct {
	Model     string `yaml:"default-model" env:"MODEL"`
	BaseURL   string `yaml:"base-url" env:"BASE_URL"`
	APIKeyEnv string `yaml:"api-key-env" env:"API_KEY_ENV"`
	CachePath string `yaml:"cache-path" env:"CACHE_PATH"`
	NoCache   bool   `yaml:"no-cache" env:"NO_CACHE"`
	Models    Models `yaml:"models"`

	System       string
	NoStream     bool
	Continue     string
	ContinueLast bool
	Title        string
	Show         string
	List         bool
	Delete       string
	Debug        bool
	Settings     bool
	Version      bool
	SettingsPath string
}

// resolveModel maps a model name or alias to the upstream model name.
// Unknown names pass through untouched so new models work without a
// settings update.
func (c Config) resolveModel(name string) string {
	if name == "" {
		name = deepseek.ModelChat
	}
	if _, ok := c.Models[name]; ok {
		return name
	}
	for _, m := range c.Models {
		for _, alias := range m.Aliases {
			if alias == name {
				return m.Name
			}
		}
	}
	return name
}

func ensureConfig() (Config, error) {
	var c Config
	sp, err := xdg.ConfigFile(filepath.Join("deepchat", "deepchat.yml"))
	if err != nil {
		return c, userError{err, "Could not find settings path."}
	}
	c.SettingsPath = sp

	if err := writeConfigFile(sp); err != nil {
		return c, err
	}
	content, err := os.ReadFile(sp)
	if err != nil {
		return c, userError{err, "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, userError{err, "Could not parse settings file."}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: "DEEPCHAT_"}); err != nil {
		return c, userError{err, "Could not parse environment into settings."}
	}

	if c.BaseURL == "" {
		c.BaseURL = deepseek.DefaultBaseURL
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "DEEPSEEK_API_KEY"
	}
	if c.CachePath == "" {
		c.CachePath = filepath.Join(xdg.DataHome, "deepchat")
	}
	if err := os.MkdirAll(c.CachePath, 0o700); err != nil {
		return c, userError{err, "Could not create cache directory."}
	}

	return c, nil
}

func writeConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return userError{err, "Could not stat settings path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return userError{err, "Could not create settings file."}
	}
	defer func() { _ = f.Close() }()

	m := struct {
		Help map[string]string
	}{
		Help: help,
	}
	if err := tmpl.Execute(f, m); err != nil {
		return userError{err, "Could not render settings template."}
	}
	return nil
}
