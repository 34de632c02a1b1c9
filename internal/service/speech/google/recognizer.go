// Package google provides a Google Cloud Speech-to-Text recognition engine.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/service/speech"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string // LINEAR16, MULAW, FLAC, etc.
	MaxAlternatives int32
	SingleUtterance bool
	Endpoint        string // Optional API endpoint override
	ChunkBytes      int    // Audio bytes per streaming request
}

// DefaultConfig returns sensible defaults for meeting audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    16000,
		InterimResults:  true,
		AudioEncoding:   "LINEAR16",
		MaxAlternatives: 1,
		ChunkBytes:      3200, // 100ms of 16kHz LINEAR16
	}
}

var encodings = map[string]speechpb.RecognitionConfig_AudioEncoding{
	"LINEAR16":               speechpb.RecognitionConfig_LINEAR16,
	"FLAC":                   speechpb.RecognitionConfig_FLAC,
	"MULAW":                  speechpb.RecognitionConfig_MULAW,
	"AMR":                    speechpb.RecognitionConfig_AMR,
	"AMR_WB":                 speechpb.RecognitionConfig_AMR_WB,
	"OGG_OPUS":               speechpb.RecognitionConfig_OGG_OPUS,
	"SPEEX_WITH_HEADER_BYTE": speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE,
	"WEBM_OPUS":              speechpb.RecognitionConfig_WEBM_OPUS,
}

// parseAudioEncoding maps an upper-case encoding name, falling back to LINEAR16.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	if enc, ok := encodings[name]; ok {
		return enc
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// AudioSource supplies raw audio for one streaming session.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ErrAlreadyRunning is returned by Start while a stream is open.
var ErrAlreadyRunning = errors.New("google recognizer already streaming")

// Recognizer implements speech.Recognizer on the streaming recognize API.
type Recognizer struct {
	client *speechapi.Client
	source AudioSource
	logger zerolog.Logger

	mu       sync.Mutex
	cfg      Config
	stopSend context.CancelFunc // Ends the audio pump, letting the server finish
	cancel   context.CancelFunc // Tears the stream down
	done     chan struct{}
}

// New creates a Google recognizer.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, source AudioSource) (*Recognizer, error) {
	if source == nil {
		return nil, errors.New("google recognizer requires an audio source")
	}
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	c, err := speechapi.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = DefaultConfig().ChunkBytes
	}
	return &Recognizer{
		client: c,
		source: source,
		cfg:    cfg,
		logger: logging.WithComponent("speech.google"),
	}, nil
}

// Factory returns a speech.Factory building Google recognizers.
func Factory(ctx context.Context, cfg Config, source AudioSource) speech.Factory {
	return func() (speech.Recognizer, error) {
		return New(ctx, cfg, source)
	}
}

// Configure applies the engine-independent recognition settings.
func (r *Recognizer) Configure(c speech.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = applyConfig(r.cfg, c)
	return nil
}

func applyConfig(cfg Config, c speech.Config) Config {
	if c.Locale != "" {
		cfg.LanguageCode = c.Locale
	}
	cfg.InterimResults = c.InterimResults
	cfg.SingleUtterance = !c.Continuous
	if c.MaxAlternatives > 0 {
		cfg.MaxAlternatives = int32(c.MaxAlternatives)
	}
	return cfg
}

func (cfg Config) streamingConfig() *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
					SampleRateHertz:            cfg.SampleRateHz,
					LanguageCode:               cfg.LanguageCode,
					MaxAlternatives:            cfg.MaxAlternatives,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  cfg.InterimResults,
				SingleUtterance: cfg.SingleUtterance,
			},
		},
	}
}

// Start opens a streaming session, sends the config and begins pumping audio.
// Results, errors and the end of the stream are reported to cb.
func (r *Recognizer) Start(ctx context.Context, cb speech.Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return ErrAlreadyRunning
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := r.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open stream: %w", err)
	}

	// Send streaming config as the first message
	if err := stream.Send(r.cfg.streamingConfig()); err != nil {
		cancel()
		return fmt.Errorf("send config: %w", err)
	}

	sendCtx, stopSend := context.WithCancel(streamCtx)
	audio, err := r.source.Open(sendCtx)
	if err != nil {
		stopSend()
		cancel()
		return fmt.Errorf("open audio: %w", err)
	}

	done := make(chan struct{})
	r.stopSend = stopSend
	r.cancel = cancel
	r.done = done

	go r.pump(sendCtx, stream, audio, r.cfg.ChunkBytes)
	go r.listen(stream, cb, done)

	r.logger.Info().
		Str("language", r.cfg.LanguageCode).
		Int32("sampleRate", r.cfg.SampleRateHz).
		Bool("interim", r.cfg.InterimResults).
		Msg("Google streaming recognition started")
	return nil
}

// Stop ends the audio stream. The server flushes pending results and the end
// event follows once the response stream drains.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopSend != nil {
		r.stopSend()
	}
	return nil
}

// Close tears down any open stream and releases the client.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return r.client.Close()
}

type audioSender interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	CloseSend() error
}

func (r *Recognizer) pump(ctx context.Context, stream audioSender, audio io.ReadCloser, chunk int) {
	defer audio.Close()
	defer func() {
		if err := stream.CloseSend(); err != nil {
			r.logger.Debug().Err(err).Msg("Close send failed")
		}
	}()

	buf := make([]byte, chunk)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			}); sendErr != nil {
				r.logger.Warn().Err(sendErr).Msg("Failed to send audio")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				r.logger.Warn().Err(err).Msg("Audio source failed")
			}
			return
		}
	}
}

type responseReceiver interface {
	Recv() (*speechpb.StreamingRecognizeResponse, error)
}

// listen receives responses until the stream closes, then reports the end.
func (r *Recognizer) listen(stream responseReceiver, cb speech.Callback, done chan struct{}) {
	defer close(done)

	for {
		resp, err := stream.Recv()
		if err != nil {
			if rerr := classifyError(err); rerr != nil {
				cb.OnError(rerr)
			}
			break
		}
		if st := resp.GetError(); st != nil && st.GetCode() != int32(codes.OK) {
			cb.OnError(classifyError(status.ErrorProto(st)))
			continue
		}
		if batch := toBatch(resp.GetResults()); len(batch.Results) > 0 {
			cb.OnResult(batch)
		}
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.stopSend, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	cb.OnEnd()
}

// toBatch keeps the top alternative of every result. Each response carries
// only results not yet delivered, so the batch always starts at index 0.
func toBatch(results []*speechpb.StreamingRecognitionResult) speech.Batch {
	batch := speech.Batch{Results: make([]speech.Result, 0, len(results))}
	for _, res := range results {
		alts := res.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		batch.Results = append(batch.Results, speech.Result{
			Transcript: alts[0].GetTranscript(),
			Confidence: float64(alts[0].GetConfidence()),
			IsFinal:    res.GetIsFinal(),
		})
	}
	return batch
}

// classifyError maps stream errors to recognition error kinds. A nil return
// means the stream ended normally.
func classifyError(err error) *speech.RecognitionError {
	if errors.Is(err, io.EOF) {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Canceled, codes.OutOfRange:
		// stop requested, or the stream hit its duration limit
		return nil
	case codes.DeadlineExceeded:
		return speech.NewRecognitionError(speech.ErrorNoSpeech, st.Message())
	case codes.PermissionDenied, codes.Unauthenticated:
		return speech.NewRecognitionError(speech.ErrorNotAllowed, st.Message())
	case codes.InvalidArgument:
		return speech.NewRecognitionError(speech.ErrorBadGrammar, st.Message())
	case codes.ResourceExhausted:
		return speech.NewRecognitionError(speech.ErrorServiceNotAllowed, st.Message())
	default:
		return speech.NewRecognitionError(speech.ErrorNetwork, st.Message())
	}
}
