package assistant

import (
	"strings"
	"time"
)

func NewAssistantInput(
	msgs []AssistantMessage,
	maxTokens int,
	temperature float64,
) AssistantInput {
	return AssistantInput{
		Msgs:        msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func NewMessage(role Role, content string) AssistantMessage {
	return AssistantMessage{Content: content, MsgRole: role, CreatedAt: time.Now()}
}

// SplitSystem separates the leading system instruction from the conversation.
func (in AssistantInput) SplitSystem() (string, []AssistantMessage) {
	var system []string
	rest := make([]AssistantMessage, 0, len(in.Msgs))
	for _, m := range in.Msgs {
		if m.MsgRole == SYSTEM {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n"), rest
}

func newOutput(id, model, content string, usage Usage) (*AssistantOutput, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyCompletion
	}
	return &AssistantOutput{
		Id:    id,
		Model: model,
		Response: AssistantMessage{
			Content:   content,
			CreatedAt: time.Now(),
			MsgRole:   ASSISTANT,
		},
		Usage: usage,
	}, nil
}

// NewOutput builds a response for providers living outside this package.
func NewOutput(id, model, content string, usage Usage) (*AssistantOutput, error) {
	return newOutput(id, model, content, usage)
}
