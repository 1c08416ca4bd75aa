package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const EnvPrefix = "VOXCHAT"

var (
	ErrMissingCredential = errors.New("config: missing model credential")
	ErrInvalid           = errors.New("config: invalid value")
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WSIdleTimeout   time.Duration `mapstructure:"ws_idle_timeout"`
}

// LLMConfig selects the chat completion backend.
// Provider is one of groq, openai, ollama or gemini.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	OllamaURLs  []string      `mapstructure:"ollama_urls"`
}

// STTConfig selects the transcription backend: openai (any OpenAI compatible
// endpoint, Groq by default) or whisper (whisper-asr-webservice).
type STTConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Language   string        `mapstructure:"language"`
	WhisperURL string        `mapstructure:"whisper_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TTSConfig selects the synthesis backend: piper or openai.
type TTSConfig struct {
	Provider string        `mapstructure:"provider"`
	PiperURL string        `mapstructure:"piper_url"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Voices   []string      `mapstructure:"voices"`
	Format   string        `mapstructure:"format"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Title         string        `mapstructure:"title"`
	HistoryCap    int           `mapstructure:"history_cap"`
	ListenTimeout time.Duration `mapstructure:"listen_timeout"`
	PhraseLimit   time.Duration `mapstructure:"phrase_limit"`
	DefaultVoice  string        `mapstructure:"default_voice"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
	SelfTest      bool          `mapstructure:"self_test"`
}

type ScratchConfig struct {
	Dir           string        `mapstructure:"dir"`
	StaleAge      time.Duration `mapstructure:"stale_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PlaybackConfig picks where replies are heard: browser (sent over the
// websocket) or local (played by Command on the server host).
type PlaybackConfig struct {
	Mode       string        `mapstructure:"mode"`
	Command    string        `mapstructure:"command"`
	Args       []string      `mapstructure:"args"`
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
}

type MicConfig struct {
	BufferBytes int `mapstructure:"buffer_bytes"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Settings struct {
	Env      string         `mapstructure:"env"`
	Debug    bool           `mapstructure:"debug"`
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	STT      STTConfig      `mapstructure:"stt"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Session  SessionConfig  `mapstructure:"session"`
	Scratch  ScratchConfig  `mapstructure:"scratch"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Mic      MicConfig      `mapstructure:"mic"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

func Load() (*Settings, error) {
	return LoadFrom(".")
}

// LoadFrom reads dir/.env, then the optional dir/config_<env>.yaml, then the
// environment. Later sources win. The result is validated.
func LoadFrom(dir string) (*Settings, error) {
	if err := gotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindCredentials(v)

	v.SetConfigName("config_" + genEnv())
	v.AddConfigPath(dir)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&settings, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	settings.normalize()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.ws_idle_timeout", 30*time.Minute)

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama3-8b-8192")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", 20)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.ollama_urls", []string{"http://localhost:11434"})

	v.SetDefault("stt.provider", "openai")
	v.SetDefault("stt.model", "whisper-large-v3")
	v.SetDefault("stt.base_url", "")
	v.SetDefault("stt.api_key", "")
	v.SetDefault("stt.language", "en")
	v.SetDefault("stt.whisper_url", "http://localhost:9000")
	v.SetDefault("stt.timeout", 30*time.Second)

	v.SetDefault("tts.provider", "piper")
	v.SetDefault("tts.piper_url", "http://localhost:5000")
	v.SetDefault("tts.model", "tts-1")
	v.SetDefault("tts.base_url", "")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.voices", []string{"alloy", "echo", "fable", "nova", "onyx", "shimmer"})
	v.SetDefault("tts.format", "mp3")
	v.SetDefault("tts.timeout", 30*time.Second)

	v.SetDefault("session.title", "Voice Chat Assistant")
	v.SetDefault("session.history_cap", 50)
	v.SetDefault("session.listen_timeout", 5*time.Second)
	v.SetDefault("session.phrase_limit", 30*time.Second)
	v.SetDefault("session.default_voice", "en-US-JennyNeural")
	v.SetDefault("session.system_prompt", "")
	v.SetDefault("session.self_test", true)

	v.SetDefault("scratch.dir", "temp_audio")
	v.SetDefault("scratch.stale_age", 10*time.Minute)
	v.SetDefault("scratch.sweep_interval", 5*time.Minute)

	v.SetDefault("playback.mode", "browser")
	v.SetDefault("playback.command", "ffplay")
	v.SetDefault("playback.args", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"})
	v.SetDefault("playback.ack_timeout", 2*time.Minute)

	v.SetDefault("mic.buffer_bytes", 4*1024*1024)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindCredentials accepts the conventional provider variables next to the
// prefixed ones. The first variable that is set wins.
func bindCredentials(v *viper.Viper) {
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("stt.api_key", EnvPrefix+"_STT_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("tts.api_key", EnvPrefix+"_TTS_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("env", EnvPrefix+"_ENV", "ENV")
}

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	openAIBaseURL = "https://api.openai.com/v1"
)

func (s *Settings) normalize() {
	s.LLM.Provider = strings.ToLower(strings.TrimSpace(s.LLM.Provider))
	s.STT.Provider = strings.ToLower(strings.TrimSpace(s.STT.Provider))
	s.TTS.Provider = strings.ToLower(strings.TrimSpace(s.TTS.Provider))
	s.Playback.Mode = strings.ToLower(strings.TrimSpace(s.Playback.Mode))

	if s.LLM.BaseURL == "" {
		switch s.LLM.Provider {
		case "groq":
			s.LLM.BaseURL = groqBaseURL
		case "openai":
			s.LLM.BaseURL = openAIBaseURL
		}
	}
	if s.STT.BaseURL == "" && s.STT.Provider == "openai" {
		s.STT.BaseURL = groqBaseURL
		if s.LLM.Provider == "openai" {
			s.STT.BaseURL = openAIBaseURL
		}
	}
	if s.TTS.BaseURL == "" && s.TTS.Provider == "openai" {
		s.TTS.BaseURL = openAIBaseURL
	}
}

// Validate fails on anything the process cannot run without, most
// importantly a missing model credential.
func (s *Settings) Validate() error {
	var errs []error

	switch s.LLM.Provider {
	case "groq", "openai", "gemini":
		if s.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: set GROQ_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY or %s_LLM_API_KEY for provider %q",
				ErrMissingCredential, EnvPrefix, s.LLM.Provider))
		}
	case "ollama":
		if len(s.LLM.OllamaURLs) == 0 {
			errs = append(errs, fmt.Errorf("%w: llm.ollama_urls is empty", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown llm.provider %q", ErrInvalid, s.LLM.Provider))
	}
	if s.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("%w: llm.model is empty", ErrInvalid))
	}
	if s.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%w: llm.max_tokens must be positive", ErrInvalid))
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%w: llm.temperature must be within [0, 2]", ErrInvalid))
	}

	switch s.STT.Provider {
	case "openai":
		if s.STT.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: transcription needs GROQ_API_KEY, OPENAI_API_KEY or %s_STT_API_KEY",
				ErrMissingCredential, EnvPrefix))
		}
	case "whisper":
		if s.STT.WhisperURL == "" {
			errs = append(errs, fmt.Errorf("%w: stt.whisper_url is empty", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown stt.provider %q", ErrInvalid, s.STT.Provider))
	}

	switch s.TTS.Provider {
	case "piper":
		if s.TTS.PiperURL == "" {
			errs = append(errs, fmt.Errorf("%w: tts.piper_url is empty", ErrInvalid))
		}
	case "openai":
		if s.TTS.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: speech synthesis needs OPENAI_API_KEY or %s_TTS_API_KEY",
				ErrMissingCredential, EnvPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown tts.provider %q", ErrInvalid, s.TTS.Provider))
	}

	if s.Session.HistoryCap <= 0 {
		errs = append(errs, fmt.Errorf("%w: session.history_cap must be positive", ErrInvalid))
	}
	if s.Session.ListenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: session.listen_timeout must be positive", ErrInvalid))
	}
	if s.Scratch.Dir == "" {
		errs = append(errs, fmt.Errorf("%w: scratch.dir is empty", ErrInvalid))
	}
	switch s.Playback.Mode {
	case "browser", "local":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown playback.mode %q", ErrInvalid, s.Playback.Mode))
	}

	return errors.Join(errs...)
}

func genEnv() string {
	for _, key := range []string{EnvPrefix + "_ENV", "ENV"} {
		if env := os.Getenv(key); env != "" {
			return env
		}
	}
	return "dev"
}
