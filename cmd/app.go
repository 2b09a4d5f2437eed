package cmd

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/advisor"
	"github.com/spigell/job-advisor/internal/ai"
	"github.com/spigell/job-advisor/internal/ai/gemini"
	"github.com/spigell/job-advisor/internal/credentials"
	"github.com/spigell/job-advisor/internal/logger"
	"github.com/spigell/job-advisor/internal/secrets"
	"github.com/spigell/job-advisor/internal/upstream"
)

func newCredentialProvider(config *Config, log *zap.Logger) (*credentials.Provider, error) {
	var exchanger credentials.Exchanger

	switch config.Auth.Mode {
	case AuthModeAPIKey:
		exchanger = credentials.NewStaticKey(secrets.Source{
			Name:  "api key",
			Value: config.Auth.APIKey,
			File:  config.Auth.APIKeyFile,
		})
	default:
		deviceCode, err := credentials.NewDeviceCode(credentials.DeviceCodeConfig{
			Authority: config.Auth.Authority,
			TenantID:  config.Auth.TenantID,
			ClientID:  config.Auth.ClientID,
			Scope:     config.Auth.Scope,
		}, log)
		if err != nil {
			return nil, err
		}
		exchanger = deviceCode
	}

	return credentials.NewProvider(exchanger, log), nil
}

func newCompleter(config *Config, creds *credentials.Provider, log *zap.Logger) (ai.Completer, error) {
	log = log.With(logger.UpstreamFields(config.Upstream.Provider, config.Auth.Mode)...)

	if config.Upstream.Provider == ProviderGemini {
		completer, err := gemini.NewCompleter(gemini.Options{
			Model:       config.Upstream.Model,
			MaxTokens:   config.Upstream.MaxTokens,
			Temperature: config.Upstream.Temperature,
		}, creds, log.With(zap.String("model", config.Upstream.Model)))
		if err != nil {
			return nil, err
		}
		return completer, nil
	}

	protocol := upstream.ProtocolResponses
	if config.Auth.Mode == AuthModeAPIKey {
		protocol = upstream.ProtocolChatCompletions
	}

	client, err := upstream.New(upstream.Options{
		Endpoint:     config.Endpoint(),
		Protocol:     protocol,
		Timeout:      config.Upstream.Timeout,
		MaxTokens:    config.Upstream.MaxTokens,
		Temperature:  config.Upstream.Temperature,
		MaxLogLength: config.Upstream.MaxLogLength,
	}, creds, log)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newSession(config *Config, completer ai.Completer, log *zap.Logger) (*advisor.Session, error) {
	var opts []advisor.Option

	if config.Advisor.SystemPrompt {
		prompt := advisor.DefaultSystemPrompt()
		if config.Advisor.SystemPromptFile != "" {
			custom, err := advisor.LoadSystemPrompt(config.Advisor.SystemPromptFile)
			if err != nil {
				return nil, err
			}
			prompt = custom
		}
		opts = append(opts, advisor.WithSystemPrompt(prompt))
	}

	return advisor.NewSession(completer, log, opts...), nil
}

// buildSession wires credentials, the completion backend and the session
// from config.
func buildSession(config *Config, log *zap.Logger) (*advisor.Session, *credentials.Provider, error) {
	creds, err := newCredentialProvider(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("building credential provider: %w", err)
	}

	completer, err := newCompleter(config, creds, log)
	if err != nil {
		return nil, nil, fmt.Errorf("building %s completer: %w", config.Upstream.Provider, err)
	}

	session, err := newSession(config, completer, log)
	if err != nil {
		return nil, nil, fmt.Errorf("building session: %w", err)
	}

	return session, creds, nil
}

func setupLogger() (*zap.Logger, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}
	return log, nil
}
