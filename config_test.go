package main

import (
	"bytes"
	"testing"
	"text/template"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/deepchat-cli/deepchat/internal/deepseek"
)

func TestModelsUnmarshalYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(
		"models:\n  deepseek-chat:\n    aliases: [\"primary\", \"chat\"]\n  deepseek-reasoner:\n    aliases: [\"reasoner\"]\n",
	), &cfg))
	require.Equal(t, Models{
		"deepseek-chat": {
			Name:    "deepseek-chat",
			Aliases: []string{"primary", "chat"},
		},
		"deepseek-reasoner": {
			Name:    "deepseek-reasoner",
			Aliases: []string{"reasoner"},
		},
	}, cfg.Models)
}

func TestResolveModel(t *testing.T) {
	cfg := Config{
		Models: Models{
			"deepseek-chat": {
				Name:    "deepseek-chat",
				Aliases: []string{"primary", "chat"},
			},
			"deepseek-reasoner": {
				Name:    "deepseek-reasoner",
				Aliases: []string{"reasoner", "r1"},
			},
		},
	}

	for in, want := range map[string]string{
		"":                  deepseek.ModelChat,
		"deepseek-chat":     "deepseek-chat",
		"deepseek-reasoner": "deepseek-reasoner",
		"primary":           "deepseek-chat",
		"chat":              "deepseek-chat",
		"reasoner":          "deepseek-reasoner",
		"r1":                "deepseek-reasoner",
		"deepseek-new":      "deepseek-new",
	} {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, cfg.resolveModel(in))
		})
	}
}

func TestConfigTemplate(t *testing.T) {
	tmpl := template.Must(template.New("config").Parse(configTemplate))
	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, struct {
		Help map[string]string
	}{Help: help}))

	var cfg Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &cfg))
	require.Equal(t, deepseek.ModelChat, cfg.Model)
	require.Equal(t, deepseek.DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, "DEEPSEEK_API_KEY", cfg.APIKeyEnv)
	require.False(t, cfg.NoCache)
	require.Equal(t, deepseek.ModelChat, cfg.resolveModel("primary"))
	require.Equal(t, deepseek.ModelReasoner, cfg.resolveModel("reasoner"))
}
