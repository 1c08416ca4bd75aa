package prompts

import (
	"strings"

	"github.com/xpanvictor/voxchat/pkg/assistant"
)

type PromptDefinition struct {
	Content string
	Version float32
}

type SYS_PROMPT struct {
	Intent         string
	CurrentVersion float32
	Items          map[float32]PromptDefinition // version-content
}

func (sp *SYS_PROMPT) GetVersion(version float32) (PromptDefinition, bool) {
	i, ok := sp.Items[version]
	return i, ok
}

func (sp *SYS_PROMPT) GetCurrentPrompt() PromptDefinition {
	return sp.Items[sp.CurrentVersion]
}

// Resolve returns override as the prompt when it is set, else the current version.
func (sp *SYS_PROMPT) Resolve(override string) PromptDefinition {
	if o := strings.TrimSpace(override); o != "" {
		return PromptDefinition{Content: o, Version: sp.CurrentVersion}
	}
	return sp.GetCurrentPrompt()
}

func (pd PromptDefinition) ToMessage() assistant.AssistantMessage {
	return assistant.NewMessage(assistant.SYSTEM, pd.Content)
}
