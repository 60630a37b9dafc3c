package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dictakey/internal/audio"
	"dictakey/internal/audio/portaudio"
	"dictakey/internal/cleanup"
	"dictakey/internal/config"
	"dictakey/internal/delivery"
	"dictakey/internal/domain"
	"dictakey/internal/hooks"
	"dictakey/internal/httpclient"
	"dictakey/internal/keys"
	"dictakey/internal/logger"
	"dictakey/internal/notify"
	"dictakey/internal/platform/shortcut"
	"dictakey/internal/ports"
	"dictakey/internal/providers"
	"dictakey/internal/providers/deepgram"
	"dictakey/internal/providers/openai"
	"dictakey/internal/providers/whisper"
	"dictakey/internal/rules"
	"dictakey/internal/settings"
	"dictakey/internal/store"
	"dictakey/internal/usecase"
)

const appName = "dictakey"

// Options are the host-provided pieces of the runtime graph.
type Options struct {
	Events ports.EventSink
	// Notifier receives notifications next to the desktop notifier. Optional.
	Notifier ports.Notifier
	// Clipboard overrides the system clipboard, for example with the Wails one.
	Clipboard delivery.ClipboardIO
	// Headless skips the input hooks and the global shortcut.
	Headless bool
	Log      *slog.Logger
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Log        *slog.Logger
	Settings   *settings.Store
	Store      store.Closer
	Rules      *rules.Engine
	Controller *usecase.SessionController
	Dispatcher *keys.Dispatcher
	Hooks      *hooks.Lifecycle
	Local      *hooks.LocalMonitor
	Sweeper    *cleanup.Sweeper

	models   *usecase.ModelCache
	whisper  *whisper.Local
	watcher  *rules.Watcher
	shortcut *shortcut.Listener
}

// sinkFunc adapts a function to hooks.Sink.
type sinkFunc func(ev domain.RawKeyEvent)

func (f sinkFunc) Publish(ev domain.RawKeyEvent) { f(ev) }

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, opts Options) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = logger.New(logger.Config{
			Level:      logger.ParseLevel(cfg.Log.Level),
			AddSource:  cfg.Log.AddSource,
			JSONFormat: cfg.Log.JSON,
		})
		logger.SetDefault(log)
	}

	prefs, err := settings.Open(cfg.Settings.Path, cfg.Models, cfg.Prompts)
	if err != nil {
		return nil, err
	}

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	shortcutBinding, err := shortcut.Parse(cfg.Shortcut.Toggle)
	if err != nil {
		return nil, fmt.Errorf("invalid toggle shortcut: %w", err)
	}

	httpClient, err := httpclient.New(httpclient.Config{
		Timeout:            cfg.HTTP.Timeout,
		EnableHTTP2:        cfg.HTTP.EnableHTTP2,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	})
	if err != nil {
		return nil, err
	}

	history, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	}, log)
	if err != nil {
		return nil, err
	}

	sweeper := cleanup.NewSweeper(cleanup.Config{
		TempDir:       cfg.Session.TempDir,
		TempPrefix:    usecase.TempRecordingPrefix,
		RecordingsDir: cfg.Session.RecordingsDir,
		Retention:     time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour,
	}, log)
	if n, err := sweeper.SweepTemp(); err != nil {
		log.Warn("temp recording sweep failed", "error", err)
	} else if n > 0 {
		log.Info("removed leftover temp recordings", "count", n)
	}

	local := whisper.NewLocal(whisper.Config{
		ServerCommand:  cfg.Whisper.ServerCommand,
		CLICommand:     cfg.Whisper.CLICommand,
		Threads:        cfg.Whisper.Threads,
		StartupTimeout: cfg.Whisper.StartupTimeout,
	}, httpClient, log)
	models := usecase.NewModelCache(local, cfg.Whisper.KeepWarm, log)

	openaiBase := openai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		MaxRetries:     cfg.OpenAI.MaxRetries,
		RetryBaseDelay: cfg.OpenAI.RetryBaseDelay,
	}
	router := providers.NewRouter(local).
		WithCloud("deepgram", deepgram.NewTranscriber(deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}), cfg.Session.ChunkSize, log)).
		WithCloud("openai", openai.NewTranscriber(openai.TranscriberConfig{
			Config:   openaiBase,
			TextPath: cfg.OpenAI.TextPath,
		}, httpClient, log))
	enhancer := openai.NewEnhancer(openai.EnhancerConfig{Config: openaiBase, Model: cfg.Enhancement.Model}, httpClient, log)

	var clip delivery.ClipboardIO = delivery.NewSystemClipboard()
	if opts.Clipboard != nil {
		clip = opts.Clipboard
	}
	keyboard := delivery.NewKeyboard()
	permissions := delivery.NewPermissions(keyboard)

	notifier := notify.Fanout{notify.NewDesktop(appName, "", log)}
	if opts.Notifier != nil {
		notifier = append(notifier, opts.Notifier)
	}

	controller := usecase.NewSessionController(usecase.Dependencies{
		Audio:       newCapture(cfg.Audio, log),
		Inspector:   audio.NewWAVInspector(),
		Transcriber: router,
		Models:      models,
		Enhancer:    enhancer,
		Store:       history,
		Rules:       rulesEngine,
		Clipboard:   clip,
		Paster:      delivery.NewPaster(clip, keyboard, log),
		Permissions: permissions,
		Notifier:    notifier,
		Events:      opts.Events,
		Preferences: prefs,
		Log:         log,
	}, usecase.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		TempDir:       cfg.Session.TempDir,
		RecordingsDir: cfg.Session.RecordingsDir,
	})

	s := &Services{
		Config:     cfg,
		Log:        log,
		Settings:   prefs,
		Store:      history,
		Rules:      rulesEngine,
		Controller: controller,
		Sweeper:    sweeper,
		models:     models,
		whisper:    local,
	}
	if cfg.Rules.Watch && cfg.Rules.Path != "" {
		s.watcher = rules.NewWatcher(rulesEngine, log)
	}
	if opts.Headless {
		return s, nil
	}

	var dispatcher *keys.Dispatcher
	s.Local = hooks.NewLocalMonitor()
	s.Hooks = hooks.NewLifecycle(
		hooks.NewRegistry(),
		sinkFunc(func(ev domain.RawKeyEvent) { dispatcher.Publish(ev) }),
		permissions,
		log,
		hooks.NewGlobalMonitor(),
		hooks.NewSystemTap(),
		s.Local,
	)
	dispatcher = keys.NewDispatcher(controller, s.Hooks, prefs, log, keys.DispatcherConfig{
		Binding:  prefs.Binding(),
		Cooldown: cfg.Session.Cooldown,
	})
	s.Dispatcher = dispatcher
	s.shortcut = shortcut.NewListener(shortcutBinding, dispatcher, log)
	return s, nil
}

func newCapture(cfg config.AudioConfig, log *slog.Logger) ports.AudioCapture {
	if cfg.Backend == "portaudio" {
		return portaudio.NewRecorder(log)
	}
	return audio.NewFFMPEGCapture(cfg.RecorderCommand)
}

// Run drives the background loops until ctx is done. Optional loops that fail
// to start are logged and do not stop the others.
func (s *Services) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.Dispatcher != nil {
		g.Go(func() error { return s.Dispatcher.Run(ctx) })
	}
	if s.shortcut != nil {
		g.Go(func() error {
			if err := s.shortcut.Run(ctx); err != nil {
				s.Log.Warn("global toggle shortcut unavailable", "error", err)
			}
			return nil
		})
	}
	if s.watcher != nil {
		g.Go(func() error {
			if err := s.watcher.Run(ctx); err != nil {
				s.Log.Warn("rules hot reload unavailable", "error", err)
			}
			return nil
		})
	}
	if s.Config.Store.RetentionDays > 0 {
		g.Go(func() error {
			s.Sweeper.Run(ctx, cleanup.DefaultInterval)
			return nil
		})
	}

	return g.Wait()
}

// Close releases hooks, warm models and the store.
func (s *Services) Close() error {
	var errs []error
	if s.Hooks != nil {
		errs = append(errs, s.Hooks.Release())
	}
	s.models.Close()
	s.whisper.Close()
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}

// Headless returns options for commands that run without a window.
func Headless(log *slog.Logger) Options {
	return Options{Events: NewLogSink(log), Headless: true, Log: log}
}
