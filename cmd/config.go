package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/spigell/job-advisor/internal/credentials"
	"github.com/spigell/job-advisor/internal/upstream"
)

const (
	AuthModeBearer = "bearer"
	AuthModeAPIKey = "api-key"

	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
)

type Config struct {
	Listen   string          `mapstructure:"listen"`
	Auth     *AuthConfig     `mapstructure:"auth"`
	Upstream *UpstreamConfig `mapstructure:"upstream"`
	Advisor  *AdvisorConfig  `mapstructure:"advisor"`
	Server   *ServerConfig   `mapstructure:"server"`
}

type AuthConfig struct {
	Mode       string `mapstructure:"mode"`
	TenantID   string `mapstructure:"tenant-id"`
	Scope      string `mapstructure:"scope"`
	ClientID   string `mapstructure:"client-id"`
	Authority  string `mapstructure:"authority"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type UpstreamConfig struct {
	Provider     string        `mapstructure:"provider"`
	Endpoint     string        `mapstructure:"endpoint"`
	BaseURL      string        `mapstructure:"base-url"`
	Deployment   string        `mapstructure:"deployment"`
	APIVersion   string        `mapstructure:"api-version"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxTokens    int           `mapstructure:"max-tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Model        string        `mapstructure:"model"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

type AdvisorConfig struct {
	SystemPrompt     bool   `mapstructure:"system-prompt"`
	SystemPromptFile string `mapstructure:"system-prompt-file"`
}

type ServerConfig struct {
	AllowedOrigins []string `mapstructure:"allowed-origins"`
	RateLimit      int      `mapstructure:"rate-limit"`
}

func setDefaults() {
	viper.SetDefault("listen", ":5002")
	viper.SetDefault("auth.mode", AuthModeBearer)
	viper.SetDefault("auth.scope", credentials.DefaultScope)
	viper.SetDefault("auth.authority", credentials.DefaultAuthority)
	viper.SetDefault("upstream.provider", ProviderAzure)
	viper.SetDefault("upstream.deployment", "gpt-4o")
	viper.SetDefault("upstream.api-version", "2024-10-21")
	viper.SetDefault("upstream.timeout", "60s")
	viper.SetDefault("upstream.max-tokens", 1000)
	viper.SetDefault("upstream.temperature", 0.3)
	viper.SetDefault("upstream.model", "gemini-2.5-flash")
	viper.SetDefault("upstream.max-log-length", 200)
	viper.SetDefault("advisor.system-prompt", true)
	viper.SetDefault("server.allowed-origins", []string{"*"})
	viper.SetDefault("server.rate-limit", 0)
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config == nil {
		return nil, errors.New("config is required")
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) normalize() {
	if c.Auth == nil {
		c.Auth = &AuthConfig{}
	}
	if c.Upstream == nil {
		c.Upstream = &UpstreamConfig{}
	}
	if c.Advisor == nil {
		c.Advisor = &AdvisorConfig{}
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}

	c.Listen = strings.TrimSpace(c.Listen)
	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	c.Upstream.Provider = strings.ToLower(strings.TrimSpace(c.Upstream.Provider))
}

// Endpoint returns the URL the azure provider posts to in the configured mode.
func (c *Config) Endpoint() string {
	if c.Auth.Mode == AuthModeAPIKey {
		if c.Upstream.BaseURL == "" {
			return ""
		}
		return upstream.ChatCompletionsURL(c.Upstream.BaseURL, c.Upstream.Deployment, c.Upstream.APIVersion)
	}

	return strings.TrimSpace(c.Upstream.Endpoint)
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Listen == "" {
		result = multierror.Append(result, errors.New("listen address is required"))
	}

	switch c.Auth.Mode {
	case AuthModeBearer:
		if strings.TrimSpace(c.Auth.TenantID) == "" {
			result = multierror.Append(result, errors.New("auth.tenant-id (AZURE_TENANT_ID) is required in bearer mode"))
		}
	case AuthModeAPIKey:
		if strings.TrimSpace(c.Auth.APIKey) == "" && strings.TrimSpace(c.Auth.APIKeyFile) == "" {
			result = multierror.Append(result, errors.New("auth.api-key or auth.api-key-file is required in api-key mode"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported auth mode %q (want %s or %s)", c.Auth.Mode, AuthModeBearer, AuthModeAPIKey))
	}

	switch c.Upstream.Provider {
	case ProviderAzure:
		if c.Endpoint() == "" {
			if c.Auth.Mode == AuthModeAPIKey {
				result = multierror.Append(result, errors.New("upstream.base-url (AZURE_ENDPOINT) is required in api-key mode"))
			} else {
				result = multierror.Append(result, errors.New("upstream.endpoint (AGENT_ENDPOINT) is required in bearer mode"))
			}
		}
		if c.Auth.Mode == AuthModeAPIKey && strings.TrimSpace(c.Upstream.Deployment) == "" {
			result = multierror.Append(result, errors.New("upstream.deployment is required in api-key mode"))
		}
	case ProviderGemini:
		if c.Auth.Mode != AuthModeAPIKey {
			result = multierror.Append(result, errors.New("gemini provider requires api-key auth mode"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported upstream provider %q (want %s or %s)", c.Upstream.Provider, ProviderAzure, ProviderGemini))
	}

	if c.Upstream.Timeout < 0 {
		result = multierror.Append(result, errors.New("upstream.timeout must not be negative"))
	}
	if c.Upstream.MaxTokens < 0 {
		result = multierror.Append(result, errors.New("upstream.max-tokens must not be negative"))
	}
	if c.Upstream.Temperature < 0 || c.Upstream.Temperature > 2 {
		result = multierror.Append(result, errors.New("upstream.temperature must be within [0, 2]"))
	}
	if c.Server.RateLimit < 0 {
		result = multierror.Append(result, errors.New("server.rate-limit must not be negative"))
	}

	return result.ErrorOrNil()
}
