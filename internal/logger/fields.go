package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the model provider name.
	FieldProvider = "upstream_provider"
	// FieldAuthMode is the structured log field key for the credential mode.
	FieldAuthMode = "auth_mode"
	// FieldThreadID is the structured log field key for the caller supplied thread id.
	FieldThreadID = "thread_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// UpstreamFields describes which model provider and credential mode serve the advisor.
func UpstreamFields(provider, authMode string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldAuthMode, Value: authMode},
	)
}

// ThreadField returns the thread id field, or nothing when the caller sent none.
func ThreadField(threadID *string) []zap.Field {
	if threadID == nil {
		return nil
	}
	return StringFields(StringField{Key: FieldThreadID, Value: *threadID})
}
