package pipeline

import (
	"regexp"
	"strings"
)

// CrisisProtocolMessage replaces the generated response when the gate decides
// the situation is a crisis.
const CrisisProtocolMessage = "I'm really concerned about what you've shared with me. Your safety matters, and I want to make sure you get the support you deserve right now.\n\nPlease reach out to someone who can help immediately:\n- Call or text 988 (Suicide and Crisis Lifeline), available 24/7\n- Text HOME to 741741 (Crisis Text Line)\n- If you are in immediate danger, call 911\n\nYou don't have to go through this alone. A counselor has also been notified and will reach out to you."

// counselingNote is appended to responses for elevated but non-crisis risk.
const counselingNote = "\n\nI also want you to know that talking to a counselor can really help with what you're going through. Would you like me to help you connect with someone?"

// Crisis-language patterns checked before any model call. The screen is
// deliberately broad; contextual analysis downgrades idiomatic matches later.
var crisisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)kill\s+(myself|my\s+self)`),
	regexp.MustCompile(`(?i)want\s+to\s+die`),
	regexp.MustCompile(`(?i)end\s+(it\s+all|my\s+life)`),
	regexp.MustCompile(`(?i)better\s+off\s+dead`),
	regexp.MustCompile(`(?i)no\s+reason\s+to\s+(live|go\s+on)`),
	regexp.MustCompile(`(?i)suicide|suicidal`),
	regexp.MustCompile(`(?i)(hurt|harm)\s+myself`),
}

// Plan indicators escalate a crisis match from ideation to intent.
var planPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(wrote|writing|leave)\s+a\s+(note|letter)`),
	regexp.MustCompile(`(?i)(give|giving|gave)\s+away\s+my`),
	regexp.MustCompile(`(?i)(stockpil|saved\s+up|collect)\w*\s+(pills|medication)`),
	regexp.MustCompile(`(?i)(tonight|this\s+weekend)\s+is\s+the\s+(night|day)`),
	regexp.MustCompile(`(?i)said\s+my\s+goodbyes`),
}

// Explicit help requests. Combined with a concerning trajectory pattern
// these open the crisis questionnaire below crisis-level risk.
var helpRequestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(please\s+)?help\s+me\b`),
	regexp.MustCompile(`(?i)\bi\s+need\s+help\b`),
	regexp.MustCompile(`(?i)\bsomeone\s+(please\s+)?help\b`),
	regexp.MustCompile(`(?i)\bi\s+can'?t\s+do\s+this\s+(alone|anymore|on\s+my\s+own)\b`),
	regexp.MustCompile(`(?i)\bdon'?t\s+know\s+(what\s+to\s+do|who\s+to\s+turn\s+to)\b`),
}

// Generated-response patterns that must never reach the individual: the
// system supports, it does not diagnose or prescribe.
var disallowedResponsePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you\s+(probably\s+)?(have|suffer\s+from)\s+(depression|bipolar|anxiety\s+disorder|ptsd)`),
	regexp.MustCompile(`(?i)i\s+diagnose`),
	regexp.MustCompile(`(?i)you\s+should\s+(take|stop\s+taking|increase|decrease)\s+\w*\s*(medication|meds|dosage)`),
	regexp.MustCompile(`(?i)you\s+don'?t\s+need\s+(a\s+)?(therapist|professional|help)`),
}

// ScreenMessage returns the safety flags raised by pattern screening, with
// plan indicators listed separately so downstream stages can distinguish
// ideation language from intent language.
func ScreenMessage(text string) (flags []string) {
	for _, p := range crisisPatterns {
		if p.MatchString(text) {
			flags = append(flags, "crisis_language:"+p.String())
		}
	}
	for _, p := range planPatterns {
		if p.MatchString(text) {
			flags = append(flags, "plan_indicator:"+p.String())
		}
	}
	return flags
}

// HasPlanIndicator reports whether any plan-indicator flag is present.
func HasPlanIndicator(flags []string) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, "plan_indicator:") {
			return true
		}
	}
	return false
}

// HasHelpRequest reports whether the message explicitly asks for help.
func HasHelpRequest(text string) bool {
	for _, p := range helpRequestPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// FilterResponse strips sentences matching disallowed patterns from a
// generated response. An emptied response falls back to a safe default.
func FilterResponse(response string) string {
	sentences := splitSentences(response)
	kept := sentences[:0]
	for _, s := range sentences {
		disallowed := false
		for _, p := range disallowedResponsePatterns {
			if p.MatchString(s) {
				disallowed = true
				break
			}
		}
		if !disallowed {
			kept = append(kept, s)
		}
	}

	filtered := strings.TrimSpace(strings.Join(kept, " "))
	if filtered == "" {
		return "I hear you, and I'm glad you told me. I'm here to listen whenever you want to talk."
	}
	return filtered
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
