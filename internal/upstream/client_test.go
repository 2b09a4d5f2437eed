package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/ai"
	"github.com/spigell/job-advisor/internal/credentials"
)

type fakeCredentials struct {
	mu          sync.Mutex
	kind        credentials.Kind
	refreshable bool
	obtained    int
	forced      int
	err         error
}

func (f *fakeCredentials) Obtain(_ context.Context, force bool) (credentials.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return credentials.Credential{}, f.err
	}
	f.obtained++
	if force {
		f.forced++
	}
	return credentials.Credential{Token: fmt.Sprintf("token-%d", f.obtained), Kind: f.kind}, nil
}

func (f *fakeCredentials) Refreshable() bool { return f.refreshable }

type recordedRequest struct {
	header http.Header
	body   map[string]any
}

type fakeModelEndpoint struct {
	t         *testing.T
	mu        sync.Mutex
	requests  []recordedRequest
	responses []fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func (f *fakeModelEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := io.ReadAll(r.Body)
	assert.NoError(f.t, err)
	var body map[string]any
	assert.NoError(f.t, json.Unmarshal(data, &body))
	f.requests = append(f.requests, recordedRequest{header: r.Header.Clone(), body: body})

	if len(f.responses) == 0 {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (f *fakeModelEndpoint) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, protocol Protocol, creds *fakeCredentials, responses ...fakeResponse) (*Client, *fakeModelEndpoint) {
	t.Helper()

	endpoint := &fakeModelEndpoint{t: t, responses: responses}
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		Endpoint:    srv.URL + "/responses",
		Protocol:    protocol,
		MaxTokens:   1000,
		Temperature: 0.3,
	}, creds, zap.NewNop())
	require.NoError(t, err)

	return client, endpoint
}

var conversation = []ai.Message{
	{Role: ai.RoleSystem, Content: "pick a resume"},
	{Role: ai.RoleUser, Content: "Senior .NET developer"},
}

func TestCompleteResponsesProtocol(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindBearer, refreshable: true}
	client, endpoint := newTestClient(t, ProtocolResponses, creds,
		fakeResponse{status: http.StatusOK, body: `{"output_text": "**Resume:** DotNet_FS_Engineer"}`},
	)

	text, err := client.Complete(context.Background(), conversation)
	require.NoError(t, err)
	require.Equal(t, "**Resume:** DotNet_FS_Engineer", text)

	requests := endpoint.Requests()
	require.Len(t, requests, 1)
	req := requests[0]
	require.Equal(t, "Bearer token-1", req.header.Get("Authorization"))
	require.Equal(t, "application/json", req.header.Get("Content-Type"))
	require.NotEmpty(t, req.header.Get(requestIDHeader))
	require.NotContains(t, req.body, "messages")
	require.NotContains(t, req.body, "max_tokens")

	input, ok := req.body["input"].([]any)
	require.True(t, ok)
	require.Len(t, input, 2)
	require.Equal(t, map[string]any{"role": "system", "content": "pick a resume"}, input[0])
}

func TestCompleteChatCompletionsProtocol(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindAPIKey}
	client, endpoint := newTestClient(t, ProtocolChatCompletions, creds,
		fakeResponse{status: http.StatusOK, body: `{"choices": [{"message": {"role": "assistant", "content": "Z"}}]}`},
	)

	text, err := client.Complete(context.Background(), conversation)
	require.NoError(t, err)
	require.Equal(t, "Z", text)

	req := endpoint.Requests()[0]
	require.Equal(t, "token-1", req.header.Get("api-key"))
	require.Empty(t, req.header.Get("Authorization"))
	require.EqualValues(t, 1000, req.body["max_tokens"])
	require.EqualValues(t, 0.3, req.body["temperature"])
	require.Len(t, req.body["messages"], 2)
}

func TestCompleteRefreshesOnceOnUnauthorized(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindBearer, refreshable: true}
	client, endpoint := newTestClient(t, ProtocolResponses, creds,
		fakeResponse{status: http.StatusUnauthorized, body: `{"error": "expired"}`},
		fakeResponse{status: http.StatusOK, body: `{"output_text": "ok"}`},
	)

	text, err := client.Complete(context.Background(), conversation)
	require.NoError(t, err)
	require.Equal(t, "ok", text)

	requests := endpoint.Requests()
	require.Len(t, requests, 2)
	require.Equal(t, "Bearer token-1", requests[0].header.Get("Authorization"))
	require.Equal(t, "Bearer token-2", requests[1].header.Get("Authorization"))
	require.Equal(t, 1, creds.forced)
}

func TestCompleteStopsAfterSecondUnauthorized(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindBearer, refreshable: true}
	client, endpoint := newTestClient(t, ProtocolResponses, creds,
		fakeResponse{status: http.StatusUnauthorized, body: "denied"},
		fakeResponse{status: http.StatusUnauthorized, body: "still denied"},
		fakeResponse{status: http.StatusOK, body: `{"output_text": "never"}`},
	)

	_, err := client.Complete(context.Background(), conversation)
	var upstreamErr *ai.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.True(t, upstreamErr.Unauthorized())
	require.Equal(t, "still denied", upstreamErr.Body)
	require.Len(t, endpoint.Requests(), 2)
}

func TestCompleteDoesNotRetryStaticKey(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindAPIKey}
	client, endpoint := newTestClient(t, ProtocolChatCompletions, creds,
		fakeResponse{status: http.StatusUnauthorized, body: "bad key"},
		fakeResponse{status: http.StatusOK, body: `{"output_text": "never"}`},
	)

	_, err := client.Complete(context.Background(), conversation)
	var upstreamErr *ai.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusUnauthorized, upstreamErr.StatusCode)
	require.Len(t, endpoint.Requests(), 1)
	require.Zero(t, creds.forced)
}

func TestCompleteDoesNotRetryServerErrors(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindBearer, refreshable: true}
	client, endpoint := newTestClient(t, ProtocolResponses, creds,
		fakeResponse{status: http.StatusTooManyRequests, body: "slow down"},
		fakeResponse{status: http.StatusOK, body: `{"output_text": "never"}`},
	)

	_, err := client.Complete(context.Background(), conversation)
	var upstreamErr *ai.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusTooManyRequests, upstreamErr.StatusCode)
	require.Equal(t, "slow down", upstreamErr.Body)
	require.Contains(t, err.Error(), "429")
	require.Len(t, endpoint.Requests(), 1)
}

func TestCompleteReturnsRawBodyForUnknownShape(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{kind: credentials.KindBearer, refreshable: true}
	client, _ := newTestClient(t, ProtocolResponses, creds,
		fakeResponse{status: http.StatusOK, body: `{"foo": "bar"}`},
	)

	text, err := client.Complete(context.Background(), conversation)
	require.NoError(t, err)
	require.Equal(t, `{"foo": "bar"}`, text)
}

func TestCompleteSurfacesCredentialFailure(t *testing.T) {
	t.Parallel()

	authErr := &ai.AuthError{Source: "device-code", Err: errors.New("user cancelled")}
	creds := &fakeCredentials{kind: credentials.KindBearer, refreshable: true, err: authErr}
	client, endpoint := newTestClient(t, ProtocolResponses, creds)

	_, err := client.Complete(context.Background(), conversation)
	require.ErrorIs(t, err, authErr)
	require.Empty(t, endpoint.Requests())
}

func TestCompleteUnreachableEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := New(Options{Endpoint: url}, &fakeCredentials{kind: credentials.KindBearer}, nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), conversation)
	var upstreamErr *ai.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Zero(t, upstreamErr.StatusCode)
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{}

	_, err := New(Options{}, creds, nil)
	require.Error(t, err)

	_, err = New(Options{Endpoint: "https://example.com", Protocol: "grpc"}, creds, nil)
	require.Error(t, err)

	_, err = New(Options{Endpoint: "https://example.com"}, nil, nil)
	require.Error(t, err)

	client, err := New(Options{Endpoint: "https://example.com"}, creds, nil)
	require.NoError(t, err)
	require.Equal(t, ProtocolResponses, client.protocol)
	require.Equal(t, defaultTimeout, client.HTTPClient.Timeout)
}

func TestChatCompletionsURL(t *testing.T) {
	t.Parallel()

	got := ChatCompletionsURL("https://example.services.ai.azure.com/", "gpt-4o", "2024-10-21")
	require.Equal(t, "https://example.services.ai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-10-21", got)
}
