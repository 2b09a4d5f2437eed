package cmd

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validBearerConfig() *Config {
	return &Config{
		Listen: ":5002",
		Auth: &AuthConfig{
			Mode:     AuthModeBearer,
			TenantID: "tenant-1",
		},
		Upstream: &UpstreamConfig{
			Provider:    ProviderAzure,
			Endpoint:    "https://agents.example.com/api/projects/advisor/responses",
			Timeout:     time.Minute,
			MaxTokens:   1000,
			Temperature: 0.3,
		},
		Advisor: &AdvisorConfig{SystemPrompt: true},
		Server:  &ServerConfig{},
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errs   int
	}{
		{
			name:   "valid bearer",
			mutate: func(*Config) {},
		},
		{
			name: "valid api key",
			mutate: func(c *Config) {
				c.Auth = &AuthConfig{Mode: AuthModeAPIKey, APIKey: "secret"}
				c.Upstream.BaseURL = "https://resource.openai.azure.com"
				c.Upstream.Deployment = "gpt-4o"
				c.Upstream.APIVersion = "2024-10-21"
			},
		},
		{
			name: "valid gemini",
			mutate: func(c *Config) {
				c.Auth = &AuthConfig{Mode: AuthModeAPIKey, APIKeyFile: "/run/secrets/gemini"}
				c.Upstream = &UpstreamConfig{Provider: ProviderGemini, Model: "gemini-2.5-flash"}
			},
		},
		{
			name: "bearer without tenant or endpoint",
			mutate: func(c *Config) {
				c.Auth.TenantID = ""
				c.Upstream.Endpoint = ""
			},
			errs: 2,
		},
		{
			name: "api key without key or base url",
			mutate: func(c *Config) {
				c.Auth = &AuthConfig{Mode: AuthModeAPIKey}
				c.Upstream.Deployment = "gpt-4o"
			},
			errs: 2,
		},
		{
			name: "unknown mode and provider",
			mutate: func(c *Config) {
				c.Auth.Mode = "kerberos"
				c.Upstream.Provider = "openai"
			},
			errs: 2,
		},
		{
			name: "gemini with bearer",
			mutate: func(c *Config) {
				c.Upstream.Provider = ProviderGemini
			},
			errs: 1,
		},
		{
			name: "out of range numbers",
			mutate: func(c *Config) {
				c.Upstream.Timeout = -time.Second
				c.Upstream.MaxTokens = -1
				c.Upstream.Temperature = 2.5
				c.Server.RateLimit = -1
			},
			errs: 4,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := validBearerConfig()
			tc.mutate(config)

			err := config.Validate()
			if tc.errs == 0 {
				require.NoError(t, err)
				return
			}

			var merr *multierror.Error
			require.ErrorAs(t, err, &merr)
			require.Len(t, merr.Errors, tc.errs, merr.Error())
		})
	}
}

func TestConfigEndpoint(t *testing.T) {
	config := validBearerConfig()
	require.Equal(t, "https://agents.example.com/api/projects/advisor/responses", config.Endpoint())

	config.Auth.Mode = AuthModeAPIKey
	config.Upstream.BaseURL = "https://resource.openai.azure.com/"
	config.Upstream.Deployment = "gpt-4o"
	config.Upstream.APIVersion = "2024-10-21"
	require.Equal(t,
		"https://resource.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-10-21",
		config.Endpoint(),
	)

	config.Upstream.BaseURL = ""
	require.Empty(t, config.Endpoint())
}

func TestGetConfigFromEnvironment(t *testing.T) {
	t.Setenv("AZURE_TENANT_ID", "tenant-1")
	t.Setenv("AGENT_ENDPOINT", "https://agents.example.com/responses")

	config, err := getConfig()
	require.NoError(t, err)

	require.Equal(t, ":5002", config.Listen)
	require.Equal(t, AuthModeBearer, config.Auth.Mode)
	require.Equal(t, "tenant-1", config.Auth.TenantID)
	require.Equal(t, "https://ai.azure.com/.default", config.Auth.Scope)
	require.Equal(t, ProviderAzure, config.Upstream.Provider)
	require.Equal(t, "https://agents.example.com/responses", config.Endpoint())
	require.Equal(t, 60*time.Second, config.Upstream.Timeout)
	require.Equal(t, 1000, config.Upstream.MaxTokens)
	require.InDelta(t, 0.3, config.Upstream.Temperature, 1e-9)
	require.True(t, config.Advisor.SystemPrompt)
	require.Equal(t, []string{"*"}, config.Server.AllowedOrigins)
}

func TestBuildSessionPerMode(t *testing.T) {
	logger := zap.NewNop()

	bearer := validBearerConfig()
	session, creds, err := buildSession(bearer, logger)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.True(t, creds.Refreshable())

	apiKey := validBearerConfig()
	apiKey.Auth = &AuthConfig{Mode: AuthModeAPIKey, APIKey: "secret"}
	apiKey.Upstream.BaseURL = "https://resource.openai.azure.com"
	apiKey.Upstream.Deployment = "gpt-4o"
	apiKey.Upstream.APIVersion = "2024-10-21"
	_, creds, err = buildSession(apiKey, logger)
	require.NoError(t, err)
	require.False(t, creds.Refreshable())

	missingPrompt := validBearerConfig()
	missingPrompt.Advisor.SystemPromptFile = "/does/not/exist.md"
	_, _, err = buildSession(missingPrompt, logger)
	require.Error(t, err)
}
