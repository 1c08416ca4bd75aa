package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/afero"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/internal/domains/conversation"
	"github.com/xpanvictor/voxchat/internal/domains/presentation"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/internal/domains/sys_manager"
	"github.com/xpanvictor/voxchat/internal/server"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/assistant"
	"github.com/xpanvictor/voxchat/pkg/io"
	"github.com/xpanvictor/voxchat/pkg/io/mic"
	"github.com/xpanvictor/voxchat/pkg/io/playback"
	"github.com/xpanvictor/voxchat/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/voxchat/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/voxchat/pkg/io/scratch"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
	"github.com/xpanvictor/voxchat/pkg/io/tts"
	"github.com/xpanvictor/voxchat/pkg/observe"
)

// App represents the application with all its dependencies
type App struct {
	Config         *config.Settings
	Logger         *Logger.Logger
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	Fs             afero.Fs

	Session        *session.Session
	DeviceRegistry registry.Registry
	Publisher      *io.Publisher
	Mic            *mic.Microphone
	Scratch        *scratch.Area

	Assistant   assistant.Assistant
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	Player      playback.Player

	Controller    *conversation.Controller
	SystemManager *sys_manager.SystemManager
	ServerDeps    server.Dependencies

	closers     []func() error
	unsubscribe func()
}

// Options override parts of the wiring, mostly for tests.
type Options struct {
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	Fs             afero.Fs
	Assistant      assistant.Assistant
	Transcriber    stt.Transcriber
	Synthesizer    tts.Synthesizer
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger, opts Options) (*App, error) {
	app := &App{
		Config:         cfg,
		Logger:         logger,
		Metrics:        opts.Metrics,
		MetricsHandler: opts.MetricsHandler,
		Fs:             opts.Fs,
		Assistant:      opts.Assistant,
		Transcriber:    opts.Transcriber,
		Synthesizer:    opts.Synthesizer,
	}
	if app.Metrics == nil {
		app.Metrics = observe.Discard()
	}
	if app.Fs == nil {
		app.Fs = afero.NewOsFs()
	}

	if err := app.setupDependencies(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies(ctx context.Context) error {
	// 1. Session and the devices attached to it
	a.Session = session.New(session.Config{
		Title:        a.Config.Session.Title,
		HistoryCap:   a.Config.Session.HistoryCap,
		DefaultVoice: a.Config.Session.DefaultVoice,
	})
	a.DeviceRegistry = memoryregistry.New()
	a.Publisher = io.New(a.DeviceRegistry, a.Session.ID, a.Config.Playback.AckTimeout, a.Logger.Named("publisher"))
	a.Mic = mic.New(mic.Config{
		BufferBytes: a.Config.Mic.BufferBytes,
		PhraseLimit: a.Config.Session.PhraseLimit,
	}, a.Publisher, a.Logger.Named("mic"))

	scratchArea, err := scratch.New(a.Fs, a.Config.Scratch.Dir)
	if err != nil {
		return err
	}
	a.Scratch = scratchArea

	// 2. External collaborators
	if err := a.setupProviders(ctx); err != nil {
		return err
	}

	// 3. Conversation cycle
	a.Controller = conversation.NewController(conversation.Deps{
		Session:     a.Session,
		Mic:         a.Mic,
		Transcriber: a.Transcriber,
		Assistant:   a.Assistant,
		Synthesizer: a.Synthesizer,
		Player:      a.Player,
		Scratch:     a.Scratch,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	}, conversation.Options{
		ListenTimeout: a.Config.Session.ListenTimeout,
		MaxTokens:     a.Config.LLM.MaxTokens,
		Temperature:   a.Config.LLM.Temperature,
		SystemPrompt:  a.Config.Session.SystemPrompt,
		STTProvider:   a.Config.STT.Provider,
		TTSProvider:   a.Config.TTS.Provider,
	})

	// 4. Background tasks
	a.SystemManager = sys_manager.NewSystemManager(a.Logger.Named("sys_manager"))
	a.SystemManager.RegisterTask(sys_manager.NewScratchSweepTask(
		a.Scratch,
		a.Config.Scratch.StaleAge,
		a.Config.Scratch.SweepInterval,
		a.Metrics,
		a.Logger.Named("scratch"),
	))

	// 5. Every state change is re-rendered to the connected pages
	a.unsubscribe = a.Session.Subscribe(func(st session.State) {
		if a.Publisher.Endpoints() == 0 {
			return
		}
		if err := a.Publisher.SendRender(context.Background(), presentation.Render(st)); err != nil {
			a.Logger.Debugf("render push: %v", err)
		}
	})

	a.ServerDeps = server.NewServerDependencies(
		a.Config,
		a.Logger,
		a.Session,
		a.Controller,
		a.Mic,
		a.Publisher,
		a.DeviceRegistry,
		a.Metrics,
		a.MetricsHandler,
	)
	return nil
}

func (a *App) setupProviders(ctx context.Context) error {
	factory := NewProviderFactory(a.Config, a.Logger)

	if a.Assistant == nil {
		llm, closer, err := factory.CreateAssistant(ctx)
		if err != nil {
			return err
		}
		a.Assistant = llm
		a.closers = append(a.closers, closer)
	}
	if a.Transcriber == nil {
		tr, err := factory.CreateTranscriber()
		if err != nil {
			return err
		}
		a.Transcriber = tr
	}
	if a.Synthesizer == nil {
		syn, err := factory.CreateSynthesizer()
		if err != nil {
			return err
		}
		a.Synthesizer = syn
	}

	player, err := factory.CreatePlayer(a.Publisher)
	if err != nil {
		return err
	}
	a.Player = player
	return nil
}

// Prepare loads the voice catalog and runs the audio self-test. Neither is
// fatal; failures show up as notices.
func (a *App) Prepare(ctx context.Context) {
	if err := a.Session.Voices.Load(ctx, a.Synthesizer); err != nil {
		a.Logger.Warnf("voice catalog unavailable: %v", err)
	}
	if !a.Session.Voices.Available() {
		a.Logger.Warnf("no voices available, using %s", a.Session.Voices.Selected())
	} else {
		a.Logger.Infof("loaded %d voices, selected %s", len(a.Session.Voices.Voices()), a.Session.Voices.Selected())
	}

	if a.Config.Session.SelfTest {
		if err := a.Controller.SelfTest(ctx); err != nil {
			a.Logger.Warnf("audio self-test failed: %v", err)
		}
	}
}

// Close releases provider clients and stops pushing renders.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}
