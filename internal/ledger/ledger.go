// Package ledger keeps the append-only, ordered log of finalized transcripts.
// It is the only writer of models.Transcript values.
package ledger

import (
	"errors"
	"strings"
	"sync"
	"time"

	"zoom-transcript-service/internal/models"
)

// NominalConfidence is stamped on every transcript.
const NominalConfidence = 0.9

// ErrEmptyTranscript is returned when the text is empty after trimming.
var ErrEmptyTranscript = errors.New("transcript text is empty")

// Ledger is an in-memory ordered log of transcripts.
type Ledger struct {
	mu          sync.RWMutex
	seq         *Sequence
	transcripts []models.Transcript
	clock       func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		seq:   NewSequence(),
		clock: time.Now,
	}
}

// Append records a finalized transcript for participant. Empty text is
// rejected without consuming an id.
func (l *Ledger) Append(participant, text string) (models.Transcript, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.Transcript{}, ErrEmptyTranscript
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := models.Transcript{
		ID:          l.seq.Next(),
		Participant: participant,
		Text:        trimmed,
		Timestamp:   l.clock(),
		Confidence:  NominalConfidence,
	}
	l.transcripts = append(l.transcripts, t)
	return t, nil
}

// All returns a copy of the ordered log.
func (l *Ledger) All() []models.Transcript {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Transcript, len(l.transcripts))
	copy(out, l.transcripts)
	return out
}

// Since returns transcripts with an id greater than id, in order.
func (l *Ledger) Since(id int64) []models.Transcript {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id >= l.seq.Last() {
		return []models.Transcript{}
	}
	// ids are dense and start at 1, but search anyway in case of gaps
	start := len(l.transcripts)
	for i, t := range l.transcripts {
		if t.ID > id {
			start = i
			break
		}
	}
	out := make([]models.Transcript, len(l.transcripts)-start)
	copy(out, l.transcripts[start:])
	return out
}

// ByParticipant returns the transcripts attributed to participant, in order.
func (l *Ledger) ByParticipant(participant string) []models.Transcript {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Transcript
	for _, t := range l.transcripts {
		if t.Participant == participant {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of stored transcripts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.transcripts)
}
