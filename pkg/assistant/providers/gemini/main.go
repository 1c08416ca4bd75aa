package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/pkg/assistant"
	"google.golang.org/api/option"
)

// GeminiProvider sends the history as a chat session and the last user turn
// as the new message.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// New creates a new GeminiProvider instance.
func New(ctx context.Context, cfg config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  cfg.Model,
	}, nil
}

// ProcessPrompt implements assistant.Assistant.
func (gp *GeminiProvider) ProcessPrompt(
	ctx context.Context,
	input assistant.AssistantInput,
) (*assistant.AssistantOutput, error) {
	if gp.client == nil {
		return nil, fmt.Errorf("gemini client is not initialized")
	}
	system, history, last, err := SplitForChat(input)
	if err != nil {
		return nil, err
	}

	model := gp.client.GenerativeModel(gp.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	model.SetTemperature(float32(input.Temperature))
	if input.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(input.MaxTokens))
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	var usage assistant.Usage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return assistant.NewOutput("", gp.model, ResponseText(resp), usage)
}

func (gp *GeminiProvider) Name() string {
	return "gemini"
}

func (gp *GeminiProvider) Close() error {
	return gp.client.Close()
}

// SplitForChat maps the input onto gemini's chat shape. Gemini calls the
// assistant role "model" and requires the new message to come from the user.
func SplitForChat(input assistant.AssistantInput) (string, []*genai.Content, string, error) {
	system, msgs := input.SplitSystem()
	if len(msgs) == 0 {
		return "", nil, "", assistant.ErrNoMessages
	}
	last := msgs[len(msgs)-1]
	if last.MsgRole != assistant.USER {
		return "", nil, "", fmt.Errorf("gemini: last message must be from the user, got %s", last.MsgRole)
	}

	history := make([]*genai.Content, 0, len(msgs)-1)
	for _, m := range msgs[:len(msgs)-1] {
		role := "user"
		if m.MsgRole == assistant.ASSISTANT {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return system, history, last.Content, nil
}

// ResponseText joins the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
