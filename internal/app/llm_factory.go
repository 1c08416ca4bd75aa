package app

import (
	"context"
	"fmt"

	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/assistant"
	"github.com/xpanvictor/voxchat/pkg/assistant/providers/gemini"
	"github.com/xpanvictor/voxchat/pkg/assistant/providers/ollama"
	"github.com/xpanvictor/voxchat/pkg/io/playback"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
	sttopenai "github.com/xpanvictor/voxchat/pkg/io/stt/openai"
	"github.com/xpanvictor/voxchat/pkg/io/stt/whisper"
	"github.com/xpanvictor/voxchat/pkg/io/tts"
	ttsopenai "github.com/xpanvictor/voxchat/pkg/io/tts/openai"
	"github.com/xpanvictor/voxchat/pkg/io/tts/piper"
)

// ProviderFactory builds the collaborators named in the settings.
type ProviderFactory struct {
	config *config.Settings
	logger *Logger.Logger
}

func NewProviderFactory(cfg *config.Settings, logger *Logger.Logger) *ProviderFactory {
	return &ProviderFactory{
		config: cfg,
		logger: logger,
	}
}

// CreateAssistant returns the chat backend and a closer for its resources.
func (f *ProviderFactory) CreateAssistant(ctx context.Context) (assistant.Assistant, func() error, error) {
	cfg := f.config.LLM
	noop := func() error { return nil }

	switch cfg.Provider {
	case "groq", "openai":
		f.logger.Infof("LLM: %s model %s at %s", cfg.Provider, cfg.Model, cfg.BaseURL)
		return assistant.NewAssistant(cfg), noop, nil
	case "ollama":
		f.logger.Infof("LLM: ollama model %s on %v", cfg.Model, cfg.OllamaURLs)
		return ollama.New(cfg, f.logger.Named("ollama")), noop, nil
	case "gemini":
		gp, err := gemini.New(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		f.logger.Infof("LLM: gemini model %s", cfg.Model)
		return gp, gp.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (f *ProviderFactory) CreateTranscriber() (stt.Transcriber, error) {
	cfg := f.config.STT

	switch cfg.Provider {
	case "openai":
		f.logger.Infof("STT: %s at %s", cfg.Model, cfg.BaseURL)
		return sttopenai.New(cfg, f.logger.Named("stt")), nil
	case "whisper":
		f.logger.Infof("STT: whisper-asr at %s", cfg.WhisperURL)
		return whisper.NewWhisperClient(cfg.WhisperURL, cfg.Language, cfg.Timeout, f.logger.Named("stt")), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}

func (f *ProviderFactory) CreateSynthesizer() (tts.Synthesizer, error) {
	cfg := f.config.TTS

	switch cfg.Provider {
	case "piper":
		f.logger.Infof("TTS: piper at %s", cfg.PiperURL)
		return piper.New(cfg.PiperURL, cfg.Timeout), nil
	case "openai":
		f.logger.Infof("TTS: %s at %s", cfg.Model, cfg.BaseURL)
		return ttsopenai.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

// CreatePlayer returns browser when replies are sent to the page, or a local
// command player.
func (f *ProviderFactory) CreatePlayer(browser playback.Player) (playback.Player, error) {
	cfg := f.config.Playback

	switch cfg.Mode {
	case "browser":
		return browser, nil
	case "local":
		f.logger.Infof("Playback: %s %v", cfg.Command, cfg.Args)
		return playback.NewCommandPlayer(cfg.Command, cfg.Args, f.logger.Named("playback")), nil
	default:
		return nil, fmt.Errorf("unknown playback mode %q", cfg.Mode)
	}
}
