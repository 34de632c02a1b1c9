// Package classifier turns finalized utterance text into a rule-based
// classification: question/command detection, tone and keywords.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"zoom-transcript-service/internal/models"
)

// MinKeywordLength is exclusive: keywords must be longer than this.
const MinKeywordLength = 4

var (
	questionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(what|when|where|who|why|how|can|could|would|should|is|are|do|does|did)\b`),
		regexp.MustCompile(`\?`),
		regexp.MustCompile(`(?i)\b(please|tell me|explain|describe)\b`),
	}

	commandPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(start|stop|begin|end|pause|resume|next|previous)\b`),
		regexp.MustCompile(`(?i)\b(show|hide|display|open|close)\b`),
	}
)

// EmotionRule pairs a label with the matcher that selects it.
type EmotionRule struct {
	Emotion models.Emotion
	Pattern *regexp.Regexp
}

// emotionRules is evaluated in order; the first match wins.
var emotionRules = []EmotionRule{
	{models.EmotionPositive, regexp.MustCompile(`(?i)\b(great|good|excellent|wonderful|amazing|fantastic|love|like)\b`)},
	{models.EmotionNegative, regexp.MustCompile(`(?i)\b(bad|terrible|awful|hate|dislike|worst|horrible)\b`)},
	{models.EmotionQuestion, regexp.MustCompile(`\?`)},
	{models.EmotionExclamation, regexp.MustCompile(`!`)},
}

// Classifier is stateless and safe for concurrent use.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify derives a Classification from text. Identical input yields an
// identical result.
func (c *Classifier) Classify(text string) models.Classification {
	if strings.TrimSpace(text) == "" {
		return empty()
	}

	result := models.Classification{
		HasSpeech: true,
		Type:      models.TypeStatement,
		Emotion:   models.EmotionNeutral,
		Keywords:  Keywords(text),
		WordCount: len(strings.Fields(text)),
	}

	if matchesAny(questionPatterns, text) {
		result.IsQuestion = true
		result.Type = models.TypeQuestion
	}
	// Evaluated after questions: a command overrides a question.
	if matchesAny(commandPatterns, text) {
		result.IsCommand = true
		result.Type = models.TypeCommand
	}

	result.Emotion = DetectEmotion(text)
	return result
}

// DetectEmotion returns the first emotion whose rule matches, or neutral.
func DetectEmotion(text string) models.Emotion {
	for _, rule := range emotionRules {
		if rule.Pattern.MatchString(text) {
			return rule.Emotion
		}
	}
	return models.EmotionNeutral
}

// Keywords lower-cases text, splits on whitespace and keeps tokens longer
// than MinKeywordLength characters. Order and duplicates are preserved;
// punctuation is not stripped.
func Keywords(text string) []string {
	keywords := []string{}
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(token) > MinKeywordLength {
			keywords = append(keywords, token)
		}
	}
	return keywords
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func empty() models.Classification {
	return models.Classification{
		HasSpeech: false,
		Type:      models.TypeStatement,
		Emotion:   models.EmotionNeutral,
		Keywords:  []string{},
	}
}
