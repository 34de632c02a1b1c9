// Package app is the composition root: it constructs and owns every
// component and wires their event topics together.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"zoom-transcript-service/internal/classifier"
	"zoom-transcript-service/internal/config"
	"zoom-transcript-service/internal/events"
	"zoom-transcript-service/internal/ledger"
	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/observability/metrics"
	"zoom-transcript-service/internal/registry"
	"zoom-transcript-service/internal/service/audio"
	"zoom-transcript-service/internal/service/audio/wavdevice"
	"zoom-transcript-service/internal/service/speech"
	"zoom-transcript-service/internal/service/speech/google"
	"zoom-transcript-service/internal/service/speech/mock"
)

const outboxSize = 256

// Application holds the service components. Each instance is independent;
// nothing is shared through package state.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Ledger     *ledger.Ledger
	Registry   *registry.Registry
	Classifier *classifier.Classifier
	Session    *speech.Session
	Monitor    *audio.Monitor // nil when audio monitoring is disabled
	Publisher  *events.Publisher
	Metrics    *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan func(context.Context)
	wg     sync.WaitGroup
	unsubs []func()
	ready  atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Application{
		Cfg:        cfg,
		Logger:     logging.WithComponent("application"),
		Ledger:     ledger.New(),
		Registry:   registry.New(),
		Classifier: classifier.New(),
		Metrics:    metrics.DefaultMetrics,
		ctx:        ctx,
		cancel:     cancel,
		outbox:     make(chan func(context.Context), outboxSize),
	}

	a.Publisher = events.New(&events.Config{
		Principal: cfg.Kafka.Principal,
		Kafka: events.KafkaConfig{
			Enabled:      cfg.Kafka.Enabled,
			Brokers:      cfg.Kafka.Brokers,
			TopicInterim: cfg.Kafka.TopicInterim,
			TopicFinal:   cfg.Kafka.TopicFinal,
		},
		NATS: events.NATSConfig{
			Enabled:        cfg.NATS.Enabled,
			URL:            cfg.NATS.URL,
			SubjectInterim: cfg.NATS.SubjectInterim,
			SubjectFinal:   cfg.NATS.SubjectFinal,
		},
	})

	a.Session = speech.New(a.recognizerFactory(), a.Ledger, a.Classifier, speech.Options{
		Recognition: speech.Config{
			Continuous:      cfg.Speech.Continuous,
			InterimResults:  cfg.Speech.InterimResults,
			Locale:          cfg.Speech.Locale,
			MaxAlternatives: cfg.Speech.MaxAlternatives,
		},
		RestartDelay: cfg.Speech.RestartDelay,
		Metrics:      a.Metrics,
	})

	if cfg.Audio.Enabled {
		a.Monitor = audio.NewMonitor(a.device(), audio.Options{
			FFTSize:           cfg.Audio.FFTSize,
			SpeakingThreshold: cfg.Audio.SpeakingThreshold,
			TickInterval:      cfg.Audio.TickInterval,
			Constraints: audio.Constraints{
				EchoCancellation: cfg.Audio.EchoCancellation,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				AutoGainControl:  cfg.Audio.AutoGainControl,
			},
			Metrics: a.Metrics,
		})
	}

	a.wire()

	a.Logger.Info().
		Str("provider", cfg.Speech.Provider).
		Bool("audio", cfg.Audio.Enabled).
		Strs("backends", a.Publisher.Backends()).
		Str("sessionId", a.Session.ID()).
		Msg("Meeting transcript application created")
	return a, nil
}

func (a *Application) device() audio.Device {
	return wavdevice.New(wavdevice.Options{Path: a.Cfg.Audio.Source, Loop: a.Cfg.Audio.Loop})
}

// recognizerFactory returns nil when the configured engine cannot exist in
// this environment; the session then reports the engine as unavailable.
func (a *Application) recognizerFactory() speech.Factory {
	switch a.Cfg.Speech.Provider {
	case config.ProviderGoogle:
		if a.Cfg.Audio.Source == "" {
			a.Logger.Warn().Msg("Google recognition needs an audio source, engine unavailable")
			return nil
		}
		gcfg := google.DefaultConfig()
		gcfg.SampleRateHz = int32(a.Cfg.Speech.SampleRateHz)
		gcfg.AudioEncoding = a.Cfg.Speech.AudioEncoding
		gcfg.Endpoint = a.Cfg.Speech.Endpoint
		src := wavdevice.New(wavdevice.Options{Path: a.Cfg.Audio.Source, Loop: a.Cfg.Audio.Loop})
		return google.Factory(a.ctx, gcfg, src)
	default:
		return mock.Factory(mock.DefaultOptions())
	}
}

// wire forwards session events to the publisher through the outbox, so slow
// brokers never stall recognition callbacks.
func (a *Application) wire() {
	sessionID := a.Session.ID()

	a.unsubs = append(a.unsubs,
		a.Session.OnInterim(func(text string) {
			ev := models.TranscriptInterim{
				EventType:   models.EventTranscriptInterim,
				SessionID:   sessionID,
				Participant: a.Session.Participant(),
				Text:        text,
				Timestamp:   time.Now().UnixMilli(),
			}
			a.enqueue(func(ctx context.Context) { _ = a.Publisher.PublishInterim(ctx, ev) })
		}),
		a.Session.OnFinal(func(t models.Transcript, c models.Classification) {
			ev := models.TranscriptFinal{
				EventType:      models.EventTranscriptFinal,
				SessionID:      sessionID,
				Transcript:     t,
				Classification: c,
				Timestamp:      time.Now().UnixMilli(),
			}
			a.enqueue(func(ctx context.Context) { _ = a.Publisher.PublishFinal(ctx, ev) })
		}),
		a.Session.OnStateChange(func(c speech.StateChange) {
			a.Logger.Debug().Str("from", c.From.String()).Str("to", c.To.String()).Msg("Session state")
		}),
	)
}

func (a *Application) enqueue(job func(context.Context)) {
	select {
	case a.outbox <- job:
	default:
		a.Logger.Warn().Msg("Publish outbox full, dropping event")
	}
}

func (a *Application) drain() {
	defer a.wg.Done()
	for {
		select {
		case job := <-a.outbox:
			job(a.ctx)
		case <-a.ctx.Done():
			return
		}
	}
}

// Join records a participant from the session layer.
func (a *Application) Join(id, displayName string) {
	a.Registry.Add(id, displayName)
	a.Metrics.RecordParticipants(a.Registry.Len())
	a.Logger.Info().Str("participantId", id).Str("displayName", displayName).Msg("Participant joined")
}

// Leave removes a participant. Unknown ids are ignored.
func (a *Application) Leave(id string) {
	a.Registry.Remove(id)
	a.Metrics.RecordParticipants(a.Registry.Len())
	a.Logger.Info().Str("participantId", id).Msg("Participant left")
}

// Start performs any startup work required before serving traffic. Audio and
// recognition failures are logged; the service keeps serving without them.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.wg.Add(1)
	go a.drain()

	if a.Monitor != nil {
		if err := a.Monitor.Start(a.ctx); err != nil {
			a.Logger.Error().Err(err).Msg("Audio monitoring unavailable")
		}
	}

	if a.Cfg.Service.AutoStart {
		if err := a.Session.Start(a.Cfg.Service.Participant); err != nil {
			if errors.Is(err, speech.ErrEngineUnavailable) {
				a.Logger.Error().Err(err).Msg("Speech recognition unavailable")
			} else {
				return err
			}
		}
	}

	a.ready.Store(true)
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Meeting transcript service starting")
	return nil
}

// Done is closed once Shutdown has begun releasing components.
func (a *Application) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Ready reports whether Start has completed and Shutdown has not begun.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops capture, flushes what it can and releases the backends.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	a.Logger.Info().Msg("Meeting transcript service shutting down")

	if err := a.Session.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Error closing speech session")
	}
	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	for _, unsub := range a.unsubs {
		unsub()
	}

	a.cancel()
	a.wg.Wait()
	a.flush()

	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Error closing publisher")
	}
}

// flush publishes queued events, bounded by a short deadline.
func (a *Application) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case job := <-a.outbox:
			job(ctx)
		default:
			return
		}
	}
}
