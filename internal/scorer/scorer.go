package scorer

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/mindwell/sentinel/internal/models"
)

// ErrBackendUnavailable reports that the contextual-reasoning backend could
// not be reached. The pipeline recovers from it locally via the keyword
// fallback; it is never fatal.
var ErrBackendUnavailable = errors.New("contextual reasoning backend unavailable")

// FallbackConfidence is the pinned confidence for results produced without
// contextual reasoning. Anything scored this way requires human review.
const FallbackConfidence = 0.3

// SuicidalIdeationAnalysis is the contextual read on suicidal ideation.
type SuicidalIdeationAnalysis struct {
	Present    bool    `json:"present"`
	IsLiteral  *bool   `json:"is_literal"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// DepressionAnalysis is the contextual read on depression indicators. It is
// an observation, never a validated score.
type DepressionAnalysis struct {
	SeverityEstimate string   `json:"severity_estimate"` // LOW, MEDIUM, HIGH
	Confidence       float64  `json:"confidence"`
	Indicators       []string `json:"indicators"`
	Reasoning        string   `json:"reasoning"`
}

// ToneAnalysis describes the emotional register of the message, including
// the emoji/idiom signals that drive the ambiguity factor of calibration.
type ToneAnalysis struct {
	Tone               string `json:"tone"`
	SarcasmDetected    bool   `json:"sarcasm_detected"`
	EmojiFunction      string `json:"emoji_function"` // humor, emphasis, literal, ambiguous
	TextEmojiAlignment string `json:"text_emoji_alignment"`
	Escalation         bool   `json:"escalation"`
	ConcernLevel       string `json:"concern_level"`
	HopelessnessThemes bool   `json:"hopelessness_themes"`
}

// RiskAnalysis is the full contextual analysis of one message.
type RiskAnalysis struct {
	SuicidalIdeation SuicidalIdeationAnalysis `json:"suicidal_ideation"`
	Depression       DepressionAnalysis       `json:"depression_indicators"`
	Tone             ToneAnalysis             `json:"overall_context"`

	// Degraded is set when the keyword fallback produced this analysis.
	Degraded bool `json:"-"`
}

// BaselineObservation is the lightweight per-message read used for passive
// baseline building. It carries no risk signal.
type BaselineObservation struct {
	Sentiment     models.Sentiment `json:"sentiment"`
	ContainsHumor bool             `json:"contains_humor"`
	Themes        []string         `json:"themes,omitempty"`
}

// AnalysisRequest bundles the message with the context the scorer may use to
// disambiguate idiom from literal expression.
type AnalysisRequest struct {
	Message     models.Message
	History     []models.Exchange
	Baseline    *models.BaselineProfile
	SafetyFlags []string
}

// ResponseRequest asks for the conversational reply to a message.
type ResponseRequest struct {
	Message models.Message
	History []models.Exchange
}

// Scorer is the contextual-reasoning surface the pipeline depends on. Two
// implementations exist: the OpenAI-backed scorer and the deterministic
// keyword scorer used when the backend is unavailable.
type Scorer interface {
	AnalyzeRisk(ctx context.Context, req AnalysisRequest) (*RiskAnalysis, error)
	ObserveBaseline(ctx context.Context, text string) (*BaselineObservation, error)
	GenerateResponse(ctx context.Context, req ResponseRequest) (string, error)
	Name() string
}

var suicidalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`kill\s+(myself|my\s+self)`),
	regexp.MustCompile(`killing\s+(myself|my\s+self)`),
	regexp.MustCompile(`end\s+it\s+all`),
	regexp.MustCompile(`ending\s+my\s+life`),
	regexp.MustCompile(`taking\s+my\s+life`),
	regexp.MustCompile(`suicide`),
}

var hopelessnessTerms = []string{
	"hopeless", "no point", "nothing matters", "give up", "worthless",
	"no future", "never get better", "burden to everyone",
}

// KeywordScorer is the conservative fallback path: fixed pattern matching,
// confidence pinned low, every positive requiring human review.
type KeywordScorer struct{}

func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

func (s *KeywordScorer) Name() string { return "keyword" }

func (s *KeywordScorer) AnalyzeRisk(_ context.Context, req AnalysisRequest) (*RiskAnalysis, error) {
	text := strings.ToLower(req.Message.Text)

	matched := false
	for _, p := range suicidalPatterns {
		if p.MatchString(text) {
			matched = true
			break
		}
	}

	hopeless := false
	for _, term := range hopelessnessTerms {
		if strings.Contains(text, term) {
			hopeless = true
			break
		}
	}

	confidence := 0.0
	if matched {
		confidence = FallbackConfidence
	}

	return &RiskAnalysis{
		SuicidalIdeation: SuicidalIdeationAnalysis{
			Present:    matched,
			IsLiteral:  nil, // unknown without contextual reasoning
			Confidence: confidence,
			Reasoning:  "keyword fallback, contextual reasoning unavailable",
		},
		Depression: DepressionAnalysis{
			SeverityEstimate: "LOW",
			Confidence:       0,
			Reasoning:        "contextual reasoning unavailable, cannot assess depression indicators",
		},
		Tone: ToneAnalysis{
			Tone:               "unknown",
			EmojiFunction:      "ambiguous",
			ConcernLevel:       "LOW",
			HopelessnessThemes: hopeless,
		},
		Degraded: true,
	}, nil
}

func (s *KeywordScorer) ObserveBaseline(_ context.Context, text string) (*BaselineObservation, error) {
	lower := strings.ToLower(text)
	sentiment := models.SentimentNeutral
	for _, term := range []string{"sad", "tired", "awful", "terrible", "hate", "lonely"} {
		if strings.Contains(lower, term) {
			sentiment = models.SentimentNegative
			break
		}
	}
	if sentiment == models.SentimentNeutral {
		for _, term := range []string{"great", "happy", "excited", "love", "awesome"} {
			if strings.Contains(lower, term) {
				sentiment = models.SentimentPositive
				break
			}
		}
	}
	return &BaselineObservation{Sentiment: sentiment}, nil
}

func (s *KeywordScorer) GenerateResponse(_ context.Context, _ ResponseRequest) (string, error) {
	return "Thank you for sharing that with me. I'm here to listen whenever you want to talk.", nil
}
