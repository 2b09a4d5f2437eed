package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/ai"
	"github.com/spigell/job-advisor/internal/credentials"
	"github.com/spigell/job-advisor/internal/utils"
)

type Protocol string

const (
	// ProtocolResponses posts {"input": [...]} to a Responses style endpoint.
	ProtocolResponses Protocol = "responses"
	// ProtocolChatCompletions posts {"messages": [...]} with generation parameters.
	ProtocolChatCompletions Protocol = "chat-completions"
)

const (
	contentType         = "application/json"
	userAgent           = "spigell/job-advisor"
	requestIDHeader     = "x-ms-client-request-id"
	defaultTimeout      = 60 * time.Second
	defaultMaxLogLength = 200
	// Error bodies are surfaced to callers; keep them bounded.
	maxErrorBody = 4096
)

// CredentialSource hands out credentials for outbound calls.
type CredentialSource interface {
	Obtain(ctx context.Context, force bool) (credentials.Credential, error)
	Refreshable() bool
}

type Options struct {
	Endpoint string
	Protocol Protocol
	Timeout  time.Duration
	// MaxTokens and Temperature are only sent with ProtocolChatCompletions.
	MaxTokens    int
	Temperature  float64
	MaxLogLength int
}

// Client sends conversations to a hosted model completion endpoint.
type Client struct {
	endpoint    string
	protocol    Protocol
	maxTokens   int
	temperature float64
	credentials CredentialSource
	logger      *zap.Logger
	maxLogLen   int

	HTTPClient *http.Client
	UserAgent  string
}

type responsesPayload struct {
	Input []ai.Message `json:"input"`
}

type chatCompletionsPayload struct {
	Messages    []ai.Message `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

func New(opts Options, creds CredentialSource, logger *zap.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("model endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("parsing model endpoint: %w", err)
	}

	if creds == nil {
		return nil, errors.New("credential source is required")
	}

	protocol := opts.Protocol
	switch protocol {
	case "":
		protocol = ProtocolResponses
	case ProtocolResponses, ProtocolChatCompletions:
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:    endpoint,
		protocol:    protocol,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		credentials: creds,
		logger:      logger,
		maxLogLen:   maxLogLen,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		UserAgent: userAgent,
	}, nil
}

// ChatCompletionsURL builds the deployment scoped chat completions URL of an
// Azure OpenAI resource.
func ChatCompletionsURL(baseURL, deployment, apiVersion string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	q := url.Values{}
	q.Set("api-version", apiVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s", base, url.PathEscape(deployment), q.Encode())
}

// Complete posts the messages and returns the assistant text. A 401 answer
// triggers one forced credential refresh and one retry when the credential
// source supports it; no other status is retried.
func (c *Client) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	payload, err := c.payload(messages)
	if err != nil {
		return "", err
	}

	cred, err := c.credentials.Obtain(ctx, false)
	if err != nil {
		return "", err
	}

	status, body, err := c.post(ctx, payload, cred)
	if err != nil {
		return "", err
	}

	if status == http.StatusUnauthorized && c.credentials.Refreshable() {
		c.logger.Info("model endpoint rejected credential, forcing refresh")

		cred, err = c.credentials.Obtain(ctx, true)
		if err != nil {
			return "", err
		}

		status, body, err = c.post(ctx, payload, cred)
		if err != nil {
			return "", err
		}
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		c.logger.Warn("model endpoint returned an error",
			zap.Int("status", status),
			zap.String("body_preview", utils.TruncateForLog(string(body), c.maxLogLen)),
		)
		return "", &ai.UpstreamError{StatusCode: status, Body: truncateBody(body)}
	}

	reply := ParseReply(body)
	c.logger.Debug("model endpoint response",
		zap.String("shape", reply.Kind.String()),
		zap.Int("response_length", utf8.RuneCountInString(reply.Text)),
		zap.String("response_preview", utils.TruncateForLog(reply.Text, c.maxLogLen)),
	)

	return reply.Text, nil
}

func (c *Client) payload(messages []ai.Message) ([]byte, error) {
	var v any
	switch c.protocol {
	case ProtocolChatCompletions:
		temperature := c.temperature
		v = chatCompletionsPayload{
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: &temperature,
		}
	default:
		v = responsesPayload{Input: messages}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", c.protocol, err)
	}

	return data, nil
}

func (c *Client) post(ctx context.Context, payload []byte, cred credentials.Credential) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("building model request: %w", err)
	}

	c.setHeaders(req, cred)

	requestID := req.Header.Get(requestIDHeader)
	c.logger.Debug("calling model endpoint",
		zap.String("url", c.endpoint),
		zap.String("protocol", string(c.protocol)),
		zap.String("request_id", requestID),
		zap.Int("payload_length", len(payload)),
		zap.String("payload_preview", utils.TruncateForLog(string(payload), c.maxLogLen)),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, &ai.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &ai.UpstreamError{Err: fmt.Errorf("reading response body: %w", err)}
	}

	c.logger.Debug("model endpoint answered",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
	)

	return resp.StatusCode, body, nil
}

func (c *Client) setHeaders(req *http.Request, cred credentials.Credential) {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set(requestIDHeader, uuid.NewString())
	cred.Apply(req)
}

func truncateBody(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
