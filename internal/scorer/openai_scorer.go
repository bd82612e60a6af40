package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
)

// OpenAIScorer is the primary scoring path: contextual reasoning over the
// message, its history and the individual's baseline. A configurable base URL
// allows pointing it at a local model server instead of the OpenAI API.
type OpenAIScorer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func NewOpenAIScorer(apiKey, baseURL, model string, maxTokens int, temperature float64, timeout time.Duration, logger *zap.Logger) *OpenAIScorer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIScorer{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

func (s *OpenAIScorer) Name() string { return "contextual" }

func (s *OpenAIScorer) AnalyzeRisk(ctx context.Context, req AnalysisRequest) (*RiskAnalysis, error) {
	prompt := s.buildRiskPrompt(req)

	raw, err := s.complete(ctx, prompt, s.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var analysis RiskAnalysis
	if err := unmarshalJSONBlock(raw, &analysis); err != nil {
		s.logger.Error("Failed to parse risk analysis response",
			zap.Error(err),
			zap.String("response", truncate(raw, 200)))
		return nil, fmt.Errorf("%w: unparseable response", ErrBackendUnavailable)
	}

	if !validRiskAnalysis(&analysis) {
		s.logger.Warn("Risk analysis response failed validation",
			zap.String("response", truncate(raw, 200)))
		return nil, fmt.Errorf("%w: invalid response structure", ErrBackendUnavailable)
	}

	return &analysis, nil
}

func (s *OpenAIScorer) ObserveBaseline(ctx context.Context, text string) (*BaselineObservation, error) {
	prompt := fmt.Sprintf(`Analyze this message for baseline communication tracking only. Do not assess risk.

Message: %q

Determine:
1. Sentiment: "positive", "neutral", or "negative"
2. Contains humor: whether the message uses sarcasm, jokes, or a lighthearted tone
3. Up to three recurring conversational themes, one or two words each

Respond with JSON only:
{
  "sentiment": "positive|neutral|negative",
  "contains_humor": boolean,
  "themes": ["theme1", "theme2"]
}`, text)

	raw, err := s.complete(ctx, prompt, 200)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var obs BaselineObservation
	if err := unmarshalJSONBlock(raw, &obs); err != nil {
		s.logger.Error("Failed to parse baseline observation",
			zap.Error(err),
			zap.String("response", truncate(raw, 200)))
		return nil, fmt.Errorf("%w: unparseable response", ErrBackendUnavailable)
	}
	switch obs.Sentiment {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
	default:
		obs.Sentiment = models.SentimentNeutral
	}
	return &obs, nil
}

func (s *OpenAIScorer) GenerateResponse(ctx context.Context, req ResponseRequest) (string, error) {
	var history strings.Builder
	for _, ex := range lastN(req.History, 5) {
		fmt.Fprintf(&history, "Them: %s\n", ex.MessageText)
		if ex.ResponseText != "" {
			fmt.Fprintf(&history, "You: %s\n", ex.ResponseText)
		}
	}

	prompt := fmt.Sprintf(`You are a supportive mental health companion. Respond to the message below with warmth and empathy.

SAFETY RULES:
- Never provide medical advice or suggest medication
- If self-harm is mentioned, acknowledge it and point to crisis resources
- Maintain professional boundaries
- Focus on validation and support

Previous conversation:
%s
Message: %s

Respond with the reply text only.`, history.String(), req.Message.Text)

	raw, err := s.complete(ctx, prompt, s.maxTokens)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return strings.TrimSpace(raw), nil
}

func (s *OpenAIScorer) buildRiskPrompt(req AnalysisRequest) string {
	var history strings.Builder
	if len(req.History) == 0 {
		history.WriteString("No previous conversation history available.\n")
	}
	for _, ex := range lastN(req.History, 5) {
		fmt.Fprintf(&history, "Previous: %s\n", truncate(ex.MessageText, 100))
	}

	var baseline strings.Builder
	if req.Baseline != nil && req.Baseline.Stats.SampleCount > 0 {
		st := req.Baseline.Stats
		fmt.Fprintf(&baseline, "Individual's baseline:\n")
		fmt.Fprintf(&baseline, "- Typical sentiment: %.2f (-1 negative .. +1 positive)\n", st.TypicalSentiment)
		fmt.Fprintf(&baseline, "- Sarcasm/humor frequency: %.2f\n", st.SarcasmFrequency)
		if st.DarkHumorBaseline {
			baseline.WriteString("- Dark humor is part of their normal register\n")
		}
		if len(st.CommonThemes) > 0 {
			fmt.Fprintf(&baseline, "- Common themes: %s\n", strings.Join(st.CommonThemes, ", "))
		}
	}

	flags := "none"
	if len(req.SafetyFlags) > 0 {
		flags = strings.Join(req.SafetyFlags, "; ")
	}

	return fmt.Sprintf(`Analyze this message for mental health risk in context.

Current message: %q

Conversation history:
%s
%s
Safety screen flags: %s

Consider:
1. Is any suicidal ideation literal or idiomatic? ("I'm dead tired" vs "I want to die")
2. The emotional context and tone, including sarcasm and dark humor
3. How the message relates to earlier messages and the individual's baseline
4. What the emojis do: amplify, contradict, or soften the text
5. Distinguish literal threats, idioms, gaming/casual usage, and sarcasm

Respond with JSON only:
{
  "suicidal_ideation": {
    "present": boolean,
    "is_literal": boolean,
    "confidence": 0.0-1.0,
    "reasoning": "string"
  },
  "depression_indicators": {
    "severity_estimate": "LOW|MEDIUM|HIGH",
    "confidence": 0.0-1.0,
    "indicators": ["list"],
    "reasoning": "string"
  },
  "overall_context": {
    "tone": "string",
    "sarcasm_detected": boolean,
    "emoji_function": "humor|emphasis|literal|ambiguous",
    "text_emoji_alignment": "amplifies|contradicts|softens|neutral",
    "escalation": boolean,
    "concern_level": "LOW|MEDIUM|HIGH|CRISIS",
    "hopelessness_themes": boolean
  }
}`, req.Message.Text, history.String(), baseline.String(), flags)
}

func (s *OpenAIScorer) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(s.temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// unmarshalJSONBlock extracts the first JSON object from a completion that
// may be wrapped in markdown fences or prose.
func unmarshalJSONBlock(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return json.Unmarshal([]byte(strings.TrimSpace(raw)), v)
}

func validRiskAnalysis(a *RiskAnalysis) bool {
	if a.SuicidalIdeation.Confidence < 0 || a.SuicidalIdeation.Confidence > 1 {
		return false
	}
	if a.Depression.Confidence < 0 || a.Depression.Confidence > 1 {
		return false
	}
	switch a.Tone.ConcernLevel {
	case "LOW", "MEDIUM", "HIGH", "CRISIS":
		return true
	}
	return false
}

func lastN(history []models.Exchange, n int) []models.Exchange {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
