package wavdevice

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"
)

const pollInterval = 5 * time.Millisecond

// pcmReader releases LINEAR16 bytes no faster than real time.
type pcmReader struct {
	ctx         context.Context
	data        []byte
	loop        bool
	bytesPerSec float64

	mu     sync.Mutex
	start  time.Time
	sent   int64
	off    int
	closed bool
}

func newPCMReader(ctx context.Context, clip *Clip, loop bool) *pcmReader {
	return &pcmReader{
		ctx:         ctx,
		data:        encodeLinear16(clip.Samples),
		loop:        loop,
		bytesPerSec: float64(clip.SampleRate * 2),
		start:       time.Now(),
	}
}

func (r *pcmReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.off >= len(r.data) {
		if !r.loop || len(r.data) == 0 {
			return 0, io.EOF
		}
		r.off = 0
	}

	var due int64
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		due = int64(time.Since(r.start).Seconds()*r.bytesPerSec) - r.sent
		if due > 0 {
			break
		}
		time.Sleep(pollInterval)
	}

	n := len(p)
	if int64(n) > due {
		n = int(due)
	}
	if rest := len(r.data) - r.off; n > rest {
		n = rest
	}
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	r.sent += int64(n)
	return n, nil
}

func (r *pcmReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func encodeLinear16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(s * math.MaxInt16)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
