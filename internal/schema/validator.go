// Package schema checks outbound transcript events against the invariants
// consumers rely on before they leave the process.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"zoom-transcript-service/internal/models"
)

var (
	ErrInvalidTranscript     = errors.New("invalid transcript")
	ErrInvalidClassification = errors.New("invalid classification")
	ErrUnknownEvent          = errors.New("unknown event")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks an outbound event. Unknown event types are rejected.
func (v *Validator) Validate(event any) error {
	switch e := event.(type) {
	case models.TranscriptFinal:
		return v.validateFinal(&e)
	case *models.TranscriptFinal:
		return v.validateFinal(e)
	case models.TranscriptInterim:
		return v.validateInterim(&e)
	case *models.TranscriptInterim:
		return v.validateInterim(e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
}

func (v *Validator) validateInterim(e *models.TranscriptInterim) error {
	if e.EventType != models.EventTranscriptInterim {
		return fmt.Errorf("%w: event type %q", ErrInvalidTranscript, e.EventType)
	}
	if e.Text == "" {
		return fmt.Errorf("%w: empty interim text", ErrInvalidTranscript)
	}
	return nil
}

func (v *Validator) validateFinal(e *models.TranscriptFinal) error {
	if e.EventType != models.EventTranscriptFinal {
		return fmt.Errorf("%w: event type %q", ErrInvalidTranscript, e.EventType)
	}
	if err := ValidateTranscript(e.Transcript); err != nil {
		return err
	}
	return ValidateClassification(e.Classification)
}

// ValidateTranscript checks identity, text and confidence.
func ValidateTranscript(t models.Transcript) error {
	switch {
	case t.ID < 1:
		return fmt.Errorf("%w: id %d", ErrInvalidTranscript, t.ID)
	case t.Text == "" || strings.TrimSpace(t.Text) != t.Text:
		return fmt.Errorf("%w: text must be non-empty and trimmed", ErrInvalidTranscript)
	case t.Confidence < 0 || t.Confidence > 1:
		return fmt.Errorf("%w: confidence %v", ErrInvalidTranscript, t.Confidence)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTranscript)
	}
	return nil
}

// ValidateClassification checks that type agrees with the detection flags and
// that a result without speech carries only defaults.
func ValidateClassification(c models.Classification) error {
	if !c.HasSpeech {
		if c.Type != models.TypeStatement || c.Emotion != models.EmotionNeutral || len(c.Keywords) != 0 || c.IsQuestion || c.IsCommand {
			return fmt.Errorf("%w: non-default result without speech", ErrInvalidClassification)
		}
		return nil
	}

	want := models.TypeStatement
	switch {
	case c.IsCommand:
		want = models.TypeCommand
	case c.IsQuestion:
		want = models.TypeQuestion
	}
	if c.Type != want {
		return fmt.Errorf("%w: type %q with question=%v command=%v", ErrInvalidClassification, c.Type, c.IsQuestion, c.IsCommand)
	}

	switch c.Emotion {
	case models.EmotionPositive, models.EmotionNegative, models.EmotionQuestion,
		models.EmotionExclamation, models.EmotionNeutral:
	default:
		return fmt.Errorf("%w: emotion %q", ErrInvalidClassification, c.Emotion)
	}
	if c.WordCount < 1 {
		return fmt.Errorf("%w: word count %d", ErrInvalidClassification, c.WordCount)
	}
	return nil
}
