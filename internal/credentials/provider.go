package credentials

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/ai"
)

// Exchanger performs a single credential exchange against an identity
// mechanism. Implementations do not cache.
type Exchanger interface {
	Name() string
	// Refreshable reports whether a new exchange may yield a different credential.
	Refreshable() bool
	Exchange(ctx context.Context) (Credential, error)
}

// Provider caches the credential produced by an Exchanger and refreshes it
// when it is about to expire or when asked to.
type Provider struct {
	exchanger Exchanger
	clock     quartz.Clock
	logger    *zap.Logger

	mu     sync.Mutex
	cached Credential
}

type Option func(*Provider)

// WithClock overrides the clock used for expiry checks.
func WithClock(clock quartz.Clock) Option {
	return func(p *Provider) {
		p.clock = clock
	}
}

func NewProvider(exchanger Exchanger, logger *zap.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		exchanger: exchanger,
		clock:     quartz.NewReal(),
		logger:    logger.With(zap.String("credential_source", exchanger.Name())),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Refreshable reports whether a forced refresh can recover from a rejected credential.
func (p *Provider) Refreshable() bool {
	return p.exchanger.Refreshable()
}

// Obtain returns a valid credential. The cached one is returned unless it is
// missing, within RefreshMargin of expiry, or force is set; otherwise exactly
// one exchange is performed and its result replaces the cache.
func (p *Provider) Obtain(ctx context.Context, force bool) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()

	reason := "forced"
	switch {
	case force:
	case p.cached.Token == "":
		reason = "initial"
	case p.cached.Valid(now):
		fields := []zap.Field{zap.String("kind", string(p.cached.Kind))}
		if ttl := p.cached.TTL(now); ttl > 0 {
			fields = append(fields, zap.Duration("expires_in", ttl.Round(time.Second)))
		}
		p.logger.Debug("using cached credential", fields...)
		return p.cached, nil
	default:
		reason = "expiring"
	}

	p.logger.Info("refreshing credential", zap.String("reason", reason))

	cred, err := p.exchanger.Exchange(ctx)
	if err != nil {
		var authErr *ai.AuthError
		if !errors.As(err, &authErr) {
			err = &ai.AuthError{Source: p.exchanger.Name(), Err: err}
		}
		p.logger.Warn("credential exchange failed", zap.Error(err))
		return Credential{}, err
	}

	p.cached = cred

	fields := []zap.Field{
		zap.String("kind", string(cred.Kind)),
		zap.Int("token_length", len(cred.Token)),
	}
	if !cred.ExpiresOn.IsZero() {
		fields = append(fields,
			zap.Time("expires_at", cred.ExpiresOn),
			zap.Duration("expires_in", cred.TTL(now).Round(time.Second)),
		)
	}
	p.logger.Info("credential acquired", fields...)

	return cred, nil
}
