package advisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/ai"
	"github.com/spigell/job-advisor/internal/logger"
)

// NoMessageReason is reported when a send carries no text.
const NoMessageReason = "No message provided"

// Request is a single chat message. ThreadID is echoed back untouched and
// never selects conversation state.
type Request struct {
	Message  string
	ThreadID *string
}

type Reply struct {
	Text     string
	ThreadID *string
}

// Session is the conversation with the model: an ordered transcript of
// user and assistant turns plus an optional fixed system instruction.
// Sends are serialized so turns of different exchanges never interleave.
type Session struct {
	completer    ai.Completer
	systemPrompt string
	logger       *zap.Logger

	mu         sync.Mutex
	transcript []ai.Message
}

type Option func(*Session)

// WithSystemPrompt prepends prompt as a system entry to every outbound request.
func WithSystemPrompt(prompt string) Option {
	return func(s *Session) {
		s.systemPrompt = strings.TrimSpace(prompt)
	}
}

func NewSession(completer ai.Completer, log *zap.Logger, opts ...Option) *Session {
	s := &Session{
		completer: completer,
		logger:    logger.WithFields(log),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send appends the user turn, asks the model with the whole transcript and
// appends the assistant answer. A failed exchange leaves the user turn in
// place; it is part of the context of the next send.
func (s *Session) Send(ctx context.Context, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &ai.ValidationError{Reason: NoMessageReason}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.With(logger.ThreadField(req.ThreadID)...)

	s.transcript = append(s.transcript, ai.Message{Role: ai.RoleUser, Content: req.Message})

	messages := s.messages()
	log.Info("sending message",
		zap.Int("message_length", utf8.RuneCountInString(req.Message)),
		zap.Int("turns", len(s.transcript)),
	)

	text, err := s.completer.Complete(ctx, messages)
	if err != nil {
		log.Warn("exchange failed", zap.Error(err))
		return nil, fmt.Errorf("chat: %w", err)
	}

	s.transcript = append(s.transcript, ai.Message{Role: ai.RoleAssistant, Content: text})

	log.Info("received reply", zap.Int("reply_length", utf8.RuneCountInString(text)))

	return &Reply{Text: text, ThreadID: req.ThreadID}, nil
}

// Reset empties the transcript.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("conversation reset", zap.Int("dropped_turns", len(s.transcript)))
	s.transcript = nil
}

// Transcript returns a copy of the turns recorded so far.
func (s *Session) Transcript() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ai.Message(nil), s.transcript...)
}

func (s *Session) messages() []ai.Message {
	messages := make([]ai.Message, 0, len(s.transcript)+1)
	if s.systemPrompt != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: s.systemPrompt})
	}
	return append(messages, s.transcript...)
}
