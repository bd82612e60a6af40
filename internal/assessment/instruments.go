// Package assessment administers validated clinical instruments. Scores come
// only from explicit administration; they are never inferred from chat.
package assessment

import (
	"fmt"

	"github.com/mindwell/sentinel/internal/models"
)

// Escalation cutoffs for the two-item screeners.
const (
	PHQ2EscalationScore = 3
	GAD2EscalationScore = 3
)

// SelfHarmItemID is the PHQ-9 item asking about thoughts of death or
// self-harm. Any answer above zero opens the crisis questionnaire regardless
// of the total score.
const SelfHarmItemID = "phq9_9"

// Question is one item of an instrument. Answers are 0-based indexes into
// Options.
type Question struct {
	ID      string
	Text    string
	Options []string
}

// Instrument is a validated questionnaire with deterministic scoring.
type Instrument struct {
	ID        models.InstrumentID
	Title     string
	Preamble  string
	Questions []Question
	// Severity maps a raw score to a severity label via ordered bands.
	Severity func(score int) string
}

// MaxScore is the highest raw score the instrument can produce.
func (in *Instrument) MaxScore() int {
	max := 0
	for _, q := range in.Questions {
		max += len(q.Options) - 1
	}
	return max
}

// Score validates responses and computes the raw score. Every question must
// be answered with an in-range option index.
func (in *Instrument) Score(responses map[string]int) (int, string, error) {
	total := 0
	for _, q := range in.Questions {
		answer, ok := responses[q.ID]
		if !ok {
			return 0, "", fmt.Errorf("missing response for question %s", q.ID)
		}
		if answer < 0 || answer >= len(q.Options) {
			return 0, "", fmt.Errorf("response %d out of range for question %s", answer, q.ID)
		}
		total += answer
	}
	return total, in.Severity(total), nil
}

var frequencyOptions = []string{
	"Not at all",
	"Several days",
	"More than half the days",
	"Nearly every day",
}

var phq2 = &Instrument{
	ID:       models.InstrumentPHQ2,
	Title:    "PHQ-2",
	Preamble: "Over the last 2 weeks, how often have you been bothered by the following problems?",
	Questions: []Question{
		{ID: "phq2_1", Text: "Little interest or pleasure in doing things", Options: frequencyOptions},
		{ID: "phq2_2", Text: "Feeling down, depressed, or hopeless", Options: frequencyOptions},
	},
	Severity: func(score int) string {
		if score >= PHQ2EscalationScore {
			return "positive_screen"
		}
		return "negative_screen"
	},
}

var phq9 = &Instrument{
	ID:       models.InstrumentPHQ9,
	Title:    "PHQ-9",
	Preamble: "Over the last 2 weeks, how often have you been bothered by any of the following problems?",
	Questions: []Question{
		{ID: "phq9_1", Text: "Little interest or pleasure in doing things", Options: frequencyOptions},
		{ID: "phq9_2", Text: "Feeling down, depressed, or hopeless", Options: frequencyOptions},
		{ID: "phq9_3", Text: "Trouble falling or staying asleep, or sleeping too much", Options: frequencyOptions},
		{ID: "phq9_4", Text: "Feeling tired or having little energy", Options: frequencyOptions},
		{ID: "phq9_5", Text: "Poor appetite or overeating", Options: frequencyOptions},
		{ID: "phq9_6", Text: "Feeling bad about yourself, or that you are a failure or have let yourself or your family down", Options: frequencyOptions},
		{ID: "phq9_7", Text: "Trouble concentrating on things, such as reading the newspaper or watching television", Options: frequencyOptions},
		{ID: "phq9_8", Text: "Moving or speaking so slowly that other people could have noticed? Or the opposite, being so fidgety or restless that you have been moving around a lot more than usual", Options: frequencyOptions},
		{ID: "phq9_9", Text: "Thoughts that you would be better off dead or of hurting yourself in some way", Options: frequencyOptions},
	},
	Severity: func(score int) string {
		switch {
		case score >= 20:
			return "severe"
		case score >= 15:
			return "moderately_severe"
		case score >= 10:
			return "moderate"
		case score >= 5:
			return "mild"
		default:
			return "minimal"
		}
	},
}

var gad2 = &Instrument{
	ID:       models.InstrumentGAD2,
	Title:    "GAD-2",
	Preamble: "Over the last 2 weeks, how often have you been bothered by the following problems?",
	Questions: []Question{
		{ID: "gad2_1", Text: "Feeling nervous, anxious, or on edge", Options: frequencyOptions},
		{ID: "gad2_2", Text: "Not being able to stop or control worrying", Options: frequencyOptions},
	},
	Severity: func(score int) string {
		if score >= GAD2EscalationScore {
			return "positive_screen"
		}
		return "negative_screen"
	},
}

var gad7 = &Instrument{
	ID:       models.InstrumentGAD7,
	Title:    "GAD-7",
	Preamble: "Over the last 2 weeks, how often have you been bothered by the following problems?",
	Questions: []Question{
		{ID: "gad7_1", Text: "Feeling nervous, anxious, or on edge", Options: frequencyOptions},
		{ID: "gad7_2", Text: "Not being able to stop or control worrying", Options: frequencyOptions},
		{ID: "gad7_3", Text: "Worrying too much about different things", Options: frequencyOptions},
		{ID: "gad7_4", Text: "Trouble relaxing", Options: frequencyOptions},
		{ID: "gad7_5", Text: "Being so restless that it is hard to sit still", Options: frequencyOptions},
		{ID: "gad7_6", Text: "Becoming easily annoyed or irritable", Options: frequencyOptions},
		{ID: "gad7_7", Text: "Feeling afraid, as if something awful might happen", Options: frequencyOptions},
	},
	Severity: func(score int) string {
		switch {
		case score >= 15:
			return "severe"
		case score >= 10:
			return "moderate"
		case score >= 5:
			return "mild"
		default:
			return "minimal"
		}
	},
}

var instruments = map[models.InstrumentID]*Instrument{
	models.InstrumentPHQ2: phq2,
	models.InstrumentPHQ9: phq9,
	models.InstrumentGAD2: gad2,
	models.InstrumentGAD7: gad7,
}

// Lookup returns the instrument definition for an ID.
func Lookup(id models.InstrumentID) (*Instrument, bool) {
	in, ok := instruments[id]
	return in, ok
}
