// Package models defines the data structures shared by the transcript pipeline.
package models

import "time"

// Transcript is a finalized recognition result owned by the ledger.
type Transcript struct {
	ID          int64     `json:"id"`
	Participant string    `json:"participant"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  float64   `json:"confidence"`
}

// UtteranceType is the coarse intent of a finalized utterance.
type UtteranceType string

const (
	TypeStatement UtteranceType = "statement"
	TypeQuestion  UtteranceType = "question"
	TypeCommand   UtteranceType = "command"
)

// Emotion is the tone label picked by the classifier.
type Emotion string

const (
	EmotionPositive    Emotion = "positive"
	EmotionNegative    Emotion = "negative"
	EmotionQuestion    Emotion = "question"
	EmotionExclamation Emotion = "exclamation"
	EmotionNeutral     Emotion = "neutral"
)

// Classification is derived from a transcript's text and never mutated.
type Classification struct {
	HasSpeech  bool          `json:"hasSpeech"`
	Type       UtteranceType `json:"type"`
	IsQuestion bool          `json:"isQuestion"`
	IsCommand  bool          `json:"isCommand"`
	Emotion    Emotion       `json:"emotion"`
	Keywords   []string      `json:"keywords"`
	WordCount  int           `json:"wordCount"`
}

// Participant is a member of the meeting as reported by the session layer.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// AudioLevelSample is produced once per monitoring tick.
type AudioLevelSample struct {
	Amplitude  float64 `json:"amplitude"`
	IsSpeaking bool    `json:"isSpeaking"`
}
