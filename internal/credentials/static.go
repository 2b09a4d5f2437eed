package credentials

import (
	"context"

	"github.com/spigell/job-advisor/internal/ai"
	"github.com/spigell/job-advisor/internal/secrets"
)

// StaticKeyExchanger serves a long-lived API key from configuration.
type StaticKeyExchanger struct {
	source secrets.Source
}

func NewStaticKey(source secrets.Source) *StaticKeyExchanger {
	return &StaticKeyExchanger{source: source}
}

func (s *StaticKeyExchanger) Name() string { return "api-key" }

func (s *StaticKeyExchanger) Refreshable() bool { return false }

func (s *StaticKeyExchanger) Exchange(context.Context) (Credential, error) {
	key, err := secrets.Load(s.source)
	if err != nil {
		return Credential{}, &ai.AuthError{Source: s.Name(), Err: err}
	}

	return Credential{Token: key, Kind: KindAPIKey}, nil
}
