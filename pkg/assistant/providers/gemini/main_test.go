package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/xpanvictor/voxchat/pkg/assistant"
)

func TestSplitForChat(t *testing.T) {
	input := assistant.NewAssistantInput([]assistant.AssistantMessage{
		assistant.NewMessage(assistant.SYSTEM, "Be brief."),
		assistant.NewMessage(assistant.USER, "hello"),
		assistant.NewMessage(assistant.ASSISTANT, "Hi!"),
		assistant.NewMessage(assistant.USER, "weather?"),
	}, 20, 0.3)

	system, history, last, err := SplitForChat(input)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if system != "Be brief." || last != "weather?" {
		t.Errorf("unexpected system %q or last %q", system, last)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "model" {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[1].Parts[0].(genai.Text) != "Hi!" {
		t.Errorf("unexpected history text %v", history[1].Parts[0])
	}
}

func TestSplitForChatNeedsUserLast(t *testing.T) {
	input := assistant.NewAssistantInput([]assistant.AssistantMessage{
		assistant.NewMessage(assistant.USER, "hello"),
		assistant.NewMessage(assistant.ASSISTANT, "Hi!"),
	}, 20, 0.3)
	if _, _, _, err := SplitForChat(input); err == nil {
		t.Error("expected error when the last message is not from the user")
	}
	if _, _, _, err := SplitForChat(assistant.AssistantInput{}); err != assistant.ErrNoMessages {
		t.Errorf("expected ErrNoMessages, got %v", err)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("It is "), genai.Text("sunny.")}},
	}}}
	if got := ResponseText(resp); got != "It is sunny." {
		t.Errorf("unexpected text %q", got)
	}
	if ResponseText(&genai.GenerateContentResponse{}) != "" {
		t.Error("expected empty text without candidates")
	}
}
