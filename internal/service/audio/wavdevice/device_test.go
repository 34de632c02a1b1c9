package wavdevice

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"zoom-transcript-service/internal/service/audio"
)

// writeTone writes a mono 16-bit WAV of a sine tone.
func writeTone(t *testing.T, sampleRate int, duration time.Duration, freq float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	n := int(float64(sampleRate) * duration.Seconds())
	data := make([]int, n)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTone(t, 8000, 250*time.Millisecond, 440)

	clip, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.SampleRate != 8000 {
		t.Errorf("expected 8000 Hz, got %d", clip.SampleRate)
	}
	if len(clip.Samples) != 2000 {
		t.Errorf("expected 2000 samples, got %d", len(clip.Samples))
	}
	if clip.Duration() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", clip.Duration())
	}
	for i, s := range clip.Samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path); !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestDevice_AcquireMissingFile(t *testing.T) {
	d := New(Options{Path: filepath.Join(t.TempDir(), "missing.wav")})
	if _, err := d.Acquire(context.Background(), audio.DefaultConstraints()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDevice_FeedsAnalyser(t *testing.T) {
	path := writeTone(t, 8000, time.Second, 1000)
	d := New(Options{Path: path, Loop: true, Block: 5 * time.Millisecond})

	stream, err := d.Acquire(context.Background(), audio.DefaultConstraints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	analyser, err := stream.NewAnalyser(256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer analyser.Close()

	bins := make([]byte, analyser.FrequencyBinCount())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		analyser.ByteFrequencyData(bins)
		if audio.Mean(bins) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if audio.Mean(bins) == 0 {
		t.Fatal("expected the analyser to see the tone")
	}

	tracks := stream.Tracks()
	if len(tracks) != 1 || tracks[0].State() != audio.TrackLive {
		t.Fatalf("expected one live track, got %v", tracks)
	}
	tracks[0].Stop()
	if tracks[0].State() != audio.TrackEnded {
		t.Error("expected track ended after stop")
	}
}

func TestDevice_TrackEndsWithoutLoop(t *testing.T) {
	path := writeTone(t, 8000, 20*time.Millisecond, 440)
	d := New(Options{Path: path, Block: 5 * time.Millisecond})

	stream, err := d.Acquire(context.Background(), audio.DefaultConstraints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	track := stream.Tracks()[0]
	deadline := time.Now().Add(2 * time.Second)
	for track.State() == audio.TrackLive && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if track.State() != audio.TrackEnded {
		t.Error("expected track to end with the recording")
	}
}

func TestDevice_OpenStreamsPCM(t *testing.T) {
	path := writeTone(t, 8000, 50*time.Millisecond, 440)
	d := New(Options{Path: path})

	r, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	start := time.Now()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 800 {
		t.Errorf("expected 800 bytes of LINEAR16, got %d", len(data))
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected real-time pacing, read finished in %v", elapsed)
	}
}

func TestDevice_OpenHonoursContext(t *testing.T) {
	path := writeTone(t, 8000, time.Second, 440)
	d := New(Options{Path: path, Loop: true})

	ctx, cancel := context.WithCancel(context.Background())
	r, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	cancel()
	buf := make([]byte, 64)
	if _, err := r.Read(buf); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEncodeLinear16(t *testing.T) {
	out := encodeLinear16([]float64{0, 1, -1, 2})
	if len(out) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(out))
	}
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("expected zero sample, got %v", out[:2])
	}
	// 32767 little-endian
	if out[2] != 0xff || out[3] != 0x7f {
		t.Errorf("expected max sample, got %v", out[2:4])
	}
	// clipped
	if out[6] != 0xff || out[7] != 0x7f {
		t.Errorf("expected clipped sample, got %v", out[6:8])
	}
}
