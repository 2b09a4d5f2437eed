package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/job-advisor/internal/ai"
	"github.com/spigell/job-advisor/internal/credentials"
)

const (
	DefaultModel = "gemini-2.5-flash"
	emptyReply   = "(empty response)"
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (g genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := g.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// CredentialSource hands out the Gemini API key.
type CredentialSource interface {
	Obtain(ctx context.Context, force bool) (credentials.Credential, error)
}

type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Completer answers conversations with the Gemini API. System entries become
// the system instruction, earlier turns become chat history and the last
// user turn is sent.
type Completer struct {
	credentials CredentialSource
	model       string
	maxTokens   int32
	temperature float32
	logger      *zap.Logger

	newChats func(ctx context.Context, apiKey string) (chatCreator, error)

	mu     sync.Mutex
	apiKey string
	chats  chatCreator
}

func NewCompleter(opts Options, creds CredentialSource, logger *zap.Logger) (*Completer, error) {
	if creds == nil {
		return nil, errors.New("credential source is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Completer{
		credentials: creds,
		model:       model,
		maxTokens:   int32(opts.MaxTokens),
		temperature: float32(opts.Temperature),
		logger:      logger,
		newChats:    newGenaiChats,
	}, nil
}

func newGenaiChats(ctx context.Context, apiKey string) (chatCreator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return genaiChats{chats: client.Chats}, nil
}

func (c *Completer) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *Completer) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	system, history, last, err := splitConversation(messages)
	if err != nil {
		return "", err
	}

	chats, err := c.chatCreator(ctx)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}
	temperature := c.temperature
	config.Temperature = &temperature

	chat, err := chats.Create(ctx, c.model, config, history)
	if err != nil {
		return "", classify(err)
	}

	c.logger.Debug("gemini send message",
		zap.String("model", c.model),
		zap.Int("history", len(history)),
	)

	resp, err := chat.SendMessage(ctx, genai.Part{Text: last})
	if err != nil {
		return "", classify(err)
	}

	return responseText(resp), nil
}

func (c *Completer) chatCreator(ctx context.Context) (chatCreator, error) {
	cred, err := c.credentials.Obtain(ctx, false)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chats != nil && c.apiKey == cred.Token {
		return c.chats, nil
	}

	chats, err := c.newChats(ctx, cred.Token)
	if err != nil {
		return nil, &ai.UpstreamError{Err: err}
	}

	c.chats = chats
	c.apiKey = cred.Token

	return chats, nil
}

func splitConversation(messages []ai.Message) (string, []*genai.Content, string, error) {
	var system []string
	turns := make([]ai.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == ai.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != ai.RoleUser {
		return "", nil, "", errors.New("conversation must end with a user turn")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, turn := range turns[:len(turns)-1] {
		role := genai.RoleUser
		if turn.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}

	return strings.Join(system, "\n\n"), history, turns[len(turns)-1].Content, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return &ai.UpstreamError{Err: err}
	}

	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ai.AuthError{Source: "gemini", Err: err}
	default:
		return &ai.UpstreamError{StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return emptyReply
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(part.Text)
		}
		// Only the first candidate with content is the answer.
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return emptyReply
	}

	return output
}
