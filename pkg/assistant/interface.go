package assistant

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

var (
	// ErrEmptyCompletion is returned when the model answered without any text.
	ErrEmptyCompletion = errors.New("assistant: completion has no content")
	ErrNoMessages      = errors.New("assistant: no messages to send")
)

type AssistantMessage struct {
	Content   string
	CreatedAt time.Time
	MsgRole   Role
}

// AssistantInput is one stateless completion request. Msgs are sent in order,
// a leading SYSTEM message is the instruction.
type AssistantInput struct {
	Msgs        []AssistantMessage
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

type AssistantOutput struct {
	Id       string
	Model    string
	Response AssistantMessage
	Usage    Usage
}

type Assistant interface {
	ProcessPrompt(ctx context.Context, input AssistantInput) (*AssistantOutput, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}
