package assistant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/voxchat/internal/config"
)

// openAIAssistant talks to any OpenAI compatible chat completion endpoint,
// Groq included.
type openAIAssistant struct {
	client   openai.Client
	model    string
	provider string
}

// ProcessPrompt implements Assistant.
func (o openAIAssistant) ProcessPrompt(
	ctx context.Context,
	input AssistantInput,
) (*AssistantOutput, error) {
	if len(input.Msgs) == 0 {
		return nil, ErrNoMessages
	}
	convertedMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(input.Msgs))
	for _, msg := range input.Msgs {
		convertedMsgs = append(convertedMsgs, convertToOpenaiMsg(msg))
	}

	params := openai.ChatCompletionNewParams{
		Messages:    convertedMsgs,
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(input.Temperature),
	}
	if input.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(input.MaxTokens))
	}

	chatCompletion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", o.provider, err)
	}
	if len(chatCompletion.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}
	return newOutput(
		chatCompletion.ID,
		chatCompletion.Model,
		chatCompletion.Choices[0].Message.Content,
		Usage{
			PromptTokens:     chatCompletion.Usage.PromptTokens,
			CompletionTokens: chatCompletion.Usage.CompletionTokens,
		},
	)
}

func (o openAIAssistant) Name() string {
	return o.provider
}

func convertToOpenaiMsg(msg AssistantMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.MsgRole {
	case ASSISTANT:
		return openai.AssistantMessage(msg.Content)
	case USER:
		return openai.UserMessage(msg.Content)
	case SYSTEM:
		return openai.SystemMessage(msg.Content)
	}
	return openai.UserMessage(msg.Content)
}

// NewAssistant builds the hosted backend. Requests are never retried.
func NewAssistant(cfg config.LLMConfig) Assistant {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	return openAIAssistant{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		provider: provider,
	}
}
