package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/assistant"
)

// chatClient is the slice of the ollama api client used here.
type chatClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// OllamaProvider serves completions from the first reachable ollama server
// registered in the farm.
type OllamaProvider struct {
	ollamafarm *ollamafarm.Farm
	model      string
	pick       func() chatClient
}

func New(cfg config.LLMConfig, logger *Logger.Logger) *OllamaProvider {
	farm := ollamafarm.New()

	// register servers
	for _, u := range cfg.OllamaURLs {
		if err := farm.RegisterURL(u, nil); err != nil {
			logger.Warnf("ollama server %s not registered: %v", u, err)
		}
	}

	p := &OllamaProvider{ollamafarm: farm, model: cfg.Model}
	p.pick = p.first
	return p
}

func (o *OllamaProvider) first() chatClient {
	// pick first available client
	ollama := o.ollamafarm.First(&ollamafarm.Where{Offline: false})
	if ollama == nil {
		return nil
	}
	return ollama.Client()
}

func (o *OllamaProvider) ConvertMsgs(msgs []assistant.AssistantMessage) []api.Message {
	converted := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		converted = append(converted, api.Message{
			Role:    string(msg.MsgRole),
			Content: msg.Content,
		})
	}
	return converted
}

// ProcessPrompt implements assistant.Assistant.
func (o *OllamaProvider) ProcessPrompt(
	ctx context.Context,
	input assistant.AssistantInput,
) (*assistant.AssistantOutput, error) {
	if len(input.Msgs) == 0 {
		return nil, assistant.ErrNoMessages
	}
	client := o.pick()
	if client == nil {
		return nil, fmt.Errorf("no ollama server online for model %v", o.model)
	}

	stream := false
	options := map[string]interface{}{"temperature": input.Temperature}
	if input.MaxTokens > 0 {
		options["num_predict"] = input.MaxTokens
	}
	req := api.ChatRequest{
		Model:    o.model,
		Messages: o.ConvertMsgs(input.Msgs),
		Stream:   &stream,
		Options:  options,
	}

	var (
		content strings.Builder
		usage   assistant.Usage
	)
	err := client.Chat(ctx, &req, func(cr api.ChatResponse) error {
		content.WriteString(cr.Message.Content)
		if cr.Done {
			usage = assistant.Usage{
				PromptTokens:     int64(cr.PromptEvalCount),
				CompletionTokens: int64(cr.EvalCount),
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama completion failed: %w", err)
	}
	return assistant.NewOutput("", o.model, content.String(), usage)
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}
