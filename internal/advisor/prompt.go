package advisor

import (
	"fmt"
	"os"
	"strings"

	_ "embed"
)

//go:embed prompt.md
var defaultSystemPrompt string

// DefaultSystemPrompt returns the built-in instruction describing the four
// resume profiles and the expected answer format.
func DefaultSystemPrompt() string {
	return strings.TrimSpace(defaultSystemPrompt)
}

// LoadSystemPrompt reads a replacement system prompt from path.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %q is empty", path)
	}

	return prompt, nil
}
