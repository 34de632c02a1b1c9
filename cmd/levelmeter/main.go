// Command levelmeter replays a WAV file through the audio activity monitor
// and draws the live level, marking ticks that count as speech.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/service/audio"
	"zoom-transcript-service/internal/service/audio/wavdevice"
)

const barWidth = 50

func main() {
	audioFile := flag.String("audio", "testdata/sample.wav", "Path to a PCM WAV file")
	loop := flag.Bool("loop", false, "Replay the file until interrupted")
	threshold := flag.Float64("threshold", audio.DefaultSpeakingThreshold, "Mean byte level above which a tick counts as speech")
	fftSize := flag.Int("fft", audio.DefaultFFTSize, "Analyser FFT size")
	every := flag.Int("every", 6, "Draw one bar per this many ticks")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.Kitchen})

	clip, err := wavdevice.Load(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to load audio file")
	}
	log.Info().
		Str("file", *audioFile).
		Int("sampleRate", clip.SampleRate).
		Dur("duration", clip.Duration()).
		Msg("Replaying audio")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !*loop {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, clip.Duration()+250*time.Millisecond)
		defer cancel()
	}

	monitor := audio.NewMonitor(wavdevice.New(wavdevice.Options{Path: *audioFile, Loop: *loop}), audio.Options{
		FFTSize:           *fftSize,
		SpeakingThreshold: *threshold,
	})

	var ticks, speaking atomic.Int64
	monitor.OnSample(func(s models.AudioLevelSample) {
		n := ticks.Add(1)
		if s.IsSpeaking {
			speaking.Add(1)
		}
		if *every > 1 && n%int64(*every) != 0 {
			return
		}
		fmt.Print(bar(s.Amplitude, s.IsSpeaking))
	})

	if err := monitor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start monitor")
	}
	<-ctx.Done()
	monitor.Stop()
	fmt.Println()

	total := ticks.Load()
	log.Info().
		Int64("ticks", total).
		Int64("speakingTicks", speaking.Load()).
		Msg("Finished")
}

func bar(amplitude float64, speaking bool) string {
	filled := int(amplitude / 255 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	mark := ' '
	if speaking {
		mark = '*'
	}
	return fmt.Sprintf("\r%c [%-*s] %6.1f", mark, barWidth, strings.Repeat("#", filled), amplitude)
}
