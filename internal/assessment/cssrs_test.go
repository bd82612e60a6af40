package assessment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

func newFlow(t *testing.T) (*CrisisFlow, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return NewCrisisFlow(store, zap.NewNop()), store
}

func allNo() map[string]int {
	responses := make(map[string]int)
	for _, q := range cssrsQuestions {
		responses[q.ID] = 0
	}
	return responses
}

func TestTriggerRequestsConsent(t *testing.T) {
	flow, _ := newFlow(t)

	session, err := flow.Trigger(context.Background(), "ind-1", "crisis language in message m-9")
	require.NoError(t, err)

	assert.Equal(t, models.QuestionnaireConsentRequested, session.State)
	assert.Equal(t, "crisis language in message m-9", session.TriggerReason)
}

func TestDeclineIsTerminalButDocumented(t *testing.T) {
	flow, store := newFlow(t)
	ctx := context.Background()

	session, err := flow.Trigger(ctx, "ind-1", "elevated risk")
	require.NoError(t, err)

	declined, err := flow.RecordConsent(ctx, session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionnaireDeclined, declined.State)
	assert.Equal(t, OutcomeDeclined, declined.Outcome)
	assert.True(t, declined.State.Terminal())

	// The trigger stays on record even though no questions were asked.
	stored, err := store.GetQuestionnaireSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "elevated risk", stored.TriggerReason)

	// No transition leaves a declined session.
	_, err = flow.RecordConsent(ctx, session.ID, true)
	assert.ErrorIs(t, err, ErrSessionTerminal)
	_, err = flow.SubmitResponses(ctx, session.ID, allNo())
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestMalformedResponsesRePrompt(t *testing.T) {
	flow, store := newFlow(t)
	ctx := context.Background()

	session, err := flow.Trigger(ctx, "ind-1", "elevated risk")
	require.NoError(t, err)
	_, err = flow.RecordConsent(ctx, session.ID, true)
	require.NoError(t, err)

	// Out-of-range answer.
	bad := allNo()
	bad["cssrs_2"] = 7
	_, err = flow.SubmitResponses(ctx, session.ID, bad)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	// Missing answer.
	incomplete := allNo()
	delete(incomplete, "cssrs_4")
	_, err = flow.SubmitResponses(ctx, session.ID, incomplete)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	// The session stays open for a corrected resubmission.
	stored, err := store.GetQuestionnaireSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionnairePresenting, stored.State)

	routed, err := flow.SubmitResponses(ctx, session.ID, allNo())
	require.NoError(t, err)
	assert.Equal(t, models.QuestionnaireRouted, routed.State)
}

func TestScoringRoutesOnSeverity(t *testing.T) {
	cases := []struct {
		name    string
		yes     []string
		outcome string
		score   int
	}{
		{"no ideation", nil, OutcomeContinueMonitor, 0},
		{"passive wish", []string{"cssrs_1"}, OutcomeUrgentReview, 1},
		{"active thoughts", []string{"cssrs_1", "cssrs_2"}, OutcomeUrgentReview, 2},
		{"method", []string{"cssrs_1", "cssrs_2", "cssrs_3"}, OutcomeImmediateCrisis, 3},
		{"plan with intent", []string{"cssrs_1", "cssrs_2", "cssrs_3", "cssrs_4", "cssrs_5"}, OutcomeImmediateCrisis, 5},
		{"past behavior only", []string{"cssrs_6"}, OutcomeImmediateCrisis, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flow, store := newFlow(t)
			ctx := context.Background()

			session, err := flow.Trigger(ctx, "ind-1", "test trigger")
			require.NoError(t, err)
			_, err = flow.RecordConsent(ctx, session.ID, true)
			require.NoError(t, err)

			responses := allNo()
			for _, id := range tc.yes {
				responses[id] = 1
			}
			routed, err := flow.SubmitResponses(ctx, session.ID, responses)
			require.NoError(t, err)

			assert.Equal(t, models.QuestionnaireRouted, routed.State)
			assert.Equal(t, tc.score, routed.Score)
			assert.Equal(t, tc.outcome, routed.Outcome)

			// A validated C-SSRS result lands in assessment history too.
			result, err := store.LatestAssessment(ctx, "ind-1", models.InstrumentCSSRS)
			require.NoError(t, err)
			assert.Equal(t, tc.score, result.RawScore)
		})
	}
}
