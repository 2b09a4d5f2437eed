package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthority = "https://login.microsoftonline.com"
	DefaultScope     = "https://ai.azure.com/.default"
	// DefaultClientID is the public client registered for developer sign-in
	// flows on the Microsoft identity platform.
	DefaultClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"
)

// DeviceCode is what the user needs to complete an interactive sign-in.
type DeviceCode struct {
	UserCode        string
	VerificationURI string
	// VerificationURIComplete embeds the user code when the provider supports it.
	VerificationURIComplete string
	ExpiresAt               time.Time
}

type DeviceCodeConfig struct {
	Authority string
	TenantID  string
	ClientID  string
	Scope     string
	// HTTPClient is used for all identity provider calls when set.
	HTTPClient *http.Client
	// Prompt shows the device code to the user. Defaults to printing on stderr.
	Prompt func(DeviceCode)
}

// DeviceCodeExchanger obtains delegated bearer tokens through the OAuth2
// device authorization grant, tied to a fixed tenant and scope. Once a
// refresh token is held, later exchanges try the refresh token grant first.
type DeviceCodeExchanger struct {
	conf       *oauth2.Config
	httpClient *http.Client
	prompt     func(DeviceCode)
	logger     *zap.Logger

	mu           sync.Mutex
	refreshToken string
}

func NewDeviceCode(cfg DeviceCodeConfig, logger *zap.Logger) (*DeviceCodeExchanger, error) {
	tenant := strings.TrimSpace(cfg.TenantID)
	if tenant == "" {
		return nil, errors.New("tenant id is required for device code sign-in")
	}

	authority := strings.TrimRight(strings.TrimSpace(cfg.Authority), "/")
	if authority == "" {
		authority = DefaultAuthority
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = DefaultClientID
	}

	scope := strings.TrimSpace(cfg.Scope)
	if scope == "" {
		scope = DefaultScope
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	base := fmt.Sprintf("%s/%s/oauth2/v2.0", authority, tenant)

	e := &DeviceCodeExchanger{
		conf: &oauth2.Config{
			ClientID: clientID,
			Scopes:   []string{scope, "offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + "/authorize",
				TokenURL:      base + "/token",
				DeviceAuthURL: base + "/devicecode",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
		prompt:     cfg.Prompt,
		logger:     logger,
	}

	if e.prompt == nil {
		e.prompt = func(code DeviceCode) {
			fmt.Fprintf(os.Stderr, "To sign in, open %s and enter the code %s\n", code.VerificationURI, code.UserCode)
		}
	}

	return e, nil
}

func (e *DeviceCodeExchanger) Name() string { return "device-code" }

func (e *DeviceCodeExchanger) Refreshable() bool { return true }

func (e *DeviceCodeExchanger) Exchange(ctx context.Context) (Credential, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	if e.refreshToken != "" {
		tok, err := e.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: e.refreshToken}).Token()
		if err == nil {
			return e.credential(tok), nil
		}
		e.logger.Warn("refresh token rejected, falling back to device code sign-in", zap.Error(err))
		e.refreshToken = ""
	}

	da, err := e.conf.DeviceAuth(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("requesting device code: %w", err)
	}

	code := DeviceCode{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		ExpiresAt:               da.Expiry,
	}
	e.logger.Info("waiting for device code sign-in",
		zap.String("verification_uri", code.VerificationURI),
		zap.String("user_code", code.UserCode),
	)
	e.prompt(code)

	tok, err := e.conf.DeviceAccessToken(ctx, da)
	if err != nil {
		return Credential{}, fmt.Errorf("waiting for device code sign-in: %w", err)
	}

	return e.credential(tok), nil
}

func (e *DeviceCodeExchanger) credential(tok *oauth2.Token) Credential {
	if tok.RefreshToken != "" {
		e.refreshToken = tok.RefreshToken
	}

	return Credential{
		Token:     tok.AccessToken,
		Kind:      KindBearer,
		ExpiresOn: tok.Expiry,
	}
}
