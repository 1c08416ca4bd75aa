package prompts

var (
	DEFAULT_PROMPT = SYS_PROMPT{
		Intent:         "Concise voice replies",
		CurrentVersion: 0.1,
		Items: map[float32]PromptDefinition{
			0.1: {
				Version: 0.1,
				Content: "You are a concise assistant. Always respond in 40 words or less.",
			},
		},
	}
)
