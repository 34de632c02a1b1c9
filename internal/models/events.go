package models

// Event type names used on the wire and on the live feed.
const (
	EventTranscriptInterim = "meeting.transcript.interim"
	EventTranscriptFinal   = "meeting.transcript.final"
	EventAudioLevel        = "meeting.audio.level"
	EventRecognitionError  = "meeting.recognition.error"
)

// TranscriptInterim represents a provisional transcript. It is never persisted.
type TranscriptInterim struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	Participant string `json:"participant"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// TranscriptFinal represents a ledger transcript together with its classification.
type TranscriptFinal struct {
	EventType      string         `json:"eventType"`
	SessionID      string         `json:"sessionId"`
	Transcript     Transcript     `json:"transcript"`
	Classification Classification `json:"classification"`
	Timestamp      int64          `json:"timestamp"`
}

// AudioLevel is the live-feed form of a speaking sample.
type AudioLevel struct {
	EventType string  `json:"eventType"`
	Amplitude float64 `json:"amplitude"`
	Timestamp int64   `json:"timestamp"`
}

// RecognitionFailure is the live-feed form of a forwarded recognition error.
type RecognitionFailure struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
