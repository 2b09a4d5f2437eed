package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type ReplyKind int

const (
	// ReplyRaw carries the whole response body because no known shape matched.
	ReplyRaw ReplyKind = iota
	// ReplyOutputText is a top level "output_text" field.
	ReplyOutputText
	// ReplyOutputItems is a Responses API "output" list with an assistant message.
	ReplyOutputItems
	// ReplyChoices is a chat completion "choices" list.
	ReplyChoices
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyOutputText:
		return "output_text"
	case ReplyOutputItems:
		return "output"
	case ReplyChoices:
		return "choices"
	default:
		return "raw"
	}
}

// Reply is the assistant text extracted from a model response, tagged with
// the shape it was found in.
type Reply struct {
	Kind ReplyKind
	Text string
}

const emptyBody = "(empty response)"

type outputItem struct {
	Type    string `mapstructure:"type"`
	Role    string `mapstructure:"role"`
	Content any    `mapstructure:"content"`
}

type contentPart struct {
	Type string `mapstructure:"type"`
	Text string `mapstructure:"text"`
}

type choice struct {
	Message struct {
		Content any `mapstructure:"content"`
	} `mapstructure:"message"`
}

type replyParser struct {
	kind  ReplyKind
	parse func(data map[string]any) string
}

// Order matters: the first shape yielding text wins.
var replyParsers = []replyParser{
	{kind: ReplyOutputText, parse: parseOutputText},
	{kind: ReplyOutputItems, parse: parseOutputItems},
	{kind: ReplyChoices, parse: parseChoices},
}

// ParseReply extracts the assistant text from a model response body. It
// never fails: unknown shapes yield a ReplyRaw with the body itself.
func ParseReply(body []byte) Reply {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err == nil {
		for _, p := range replyParsers {
			if text := p.parse(data); text != "" {
				return Reply{Kind: p.kind, Text: text}
			}
		}
	}

	raw := strings.TrimSpace(string(body))
	if raw == "" {
		raw = emptyBody
	}

	return Reply{Kind: ReplyRaw, Text: raw}
}

func parseOutputText(data map[string]any) string {
	value, ok := data["output_text"]
	if !ok {
		return ""
	}
	return coerceString(value)
}

func parseOutputItems(data map[string]any) string {
	value, ok := data["output"]
	if !ok {
		return ""
	}

	var items []outputItem
	if err := mapstructure.Decode(value, &items); err != nil {
		return ""
	}

	for _, item := range items {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}

		list, ok := item.Content.([]any)
		if !ok {
			return coerceString(item.Content)
		}

		var parts []contentPart
		if err := mapstructure.Decode(list, &parts); err != nil {
			return ""
		}
		for _, part := range parts {
			if part.Type == "output_text" {
				return part.Text
			}
		}
		return ""
	}

	return ""
}

func parseChoices(data map[string]any) string {
	value, ok := data["choices"]
	if !ok {
		return ""
	}

	var choices []choice
	if err := mapstructure.Decode(value, &choices); err != nil || len(choices) == 0 {
		return ""
	}

	return coerceString(choices[0].Message.Content)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
