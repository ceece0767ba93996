package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/studypal/studypal/internal/models"
)

type stubIntentModel struct {
	intent models.Intent
	err    error
	calls  int
}

func (s *stubIntentModel) Classify(ctx context.Context, text string, history []models.Message) (models.Intent, error) {
	s.calls++
	return s.intent, s.err
}

func classify(t *testing.T, c *IntentClassifier, state *models.ConversationState, text string) models.Intent {
	t.Helper()
	intent, patch := c.Classify(context.Background(), state, text)
	state.Apply(patch)
	return intent
}

func TestClassifyOpenSubDialogueForcesScheduler(t *testing.T) {
	model := &stubIntentModel{intent: models.IntentMotivator}
	c := NewIntentClassifier(model)

	state := models.NewConversationState("s1", "u1")
	state.AwaitingScheduleConfirmation = true

	// Content that would otherwise route elsewhere still goes to scheduler.
	if got := classify(t, c, state, "motivate me"); got != models.IntentScheduler {
		t.Errorf("expected scheduler with open sub-dialogue, got %s", got)
	}
	if model.calls != 0 {
		t.Error("fast path must not consult the model")
	}
}

func TestClassifyNextHandlerHintConsumed(t *testing.T) {
	c := NewIntentClassifier(nil)
	state := models.NewConversationState("s1", "u1")
	state.NextHandler = models.NodeAnalyzer

	if got := classify(t, c, state, "sure"); got != models.IntentAnalyzer {
		t.Errorf("expected analyzer from hint, got %s", got)
	}
	if state.NextHandler != "" {
		t.Errorf("expected hint cleared, got %q", state.NextHandler)
	}

	// Next turn routes normally again.
	if got := classify(t, c, state, "motivate me"); got != models.IntentMotivator {
		t.Errorf("expected normal routing after hint consumed, got %s", got)
	}
}

func TestClassifyActiveTutoringKeepsTutor(t *testing.T) {
	c := NewIntentClassifier(nil)
	state := models.NewConversationState("s1", "u1")
	state.TutorActive = true

	if got := classify(t, c, state, "motivate me"); got != models.IntentTutor {
		t.Errorf("expected tutor while loop active, got %s", got)
	}
}

func TestClassifyKeywordRouting(t *testing.T) {
	c := NewIntentClassifier(nil)

	cases := []struct {
		text string
		want models.Intent
	}{
		{"help me plan my study calendar", models.IntentScheduler},
		{"I'm free from 2pm to 5pm", models.IntentScheduler},
		{"analyze my weak points", models.IntentAnalyzer},
		{"I could use some encouragement", models.IntentMotivator},
		{"what is photosynthesis?", models.IntentTutor},
	}
	for _, tc := range cases {
		state := models.NewConversationState("s1", "u1")
		if got := classify(t, c, state, tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestClassifyModelFallback(t *testing.T) {
	model := &stubIntentModel{intent: models.IntentMotivator}
	c := NewIntentClassifier(model)
	state := models.NewConversationState("s1", "u1")

	if got := classify(t, c, state, "I feel a bit low today"); got != models.IntentMotivator {
		t.Errorf("expected model fallback result, got %s", got)
	}
	if model.calls != 1 {
		t.Errorf("expected one model call, got %d", model.calls)
	}
}

func TestClassifyModelFailureDefaultsTutor(t *testing.T) {
	model := &stubIntentModel{err: errors.New("classifier offline")}
	c := NewIntentClassifier(model)
	state := models.NewConversationState("s1", "u1")

	if got := classify(t, c, state, "hmm"); got != models.IntentTutor {
		t.Errorf("expected tutor on model failure, got %s", got)
	}
}

func TestClassifySyncConfirmationRoutesScheduler(t *testing.T) {
	c := NewIntentClassifier(nil)
	state := models.NewConversationState("s1", "u1")
	state.LastSchedule = &models.Schedule{Synced: false}

	if got := classify(t, c, state, "yes"); got != models.IntentScheduler {
		t.Errorf("expected scheduler for sync confirmation, got %s", got)
	}

	state.LastSchedule.Synced = true
	if got := classify(t, c, state, "yes"); got == models.IntentScheduler {
		t.Error("a synced schedule must not capture affirmative replies")
	}
}

func TestClassifyInitializesModeFlags(t *testing.T) {
	c := NewIntentClassifier(nil)

	state := models.NewConversationState("s1", "u1")
	classify(t, c, state, "motivate me")
	if !state.NeedsMotivation || state.SessionMode != models.ModeMotivationRequested {
		t.Errorf("expected motivation flags initialized, got %+v", state)
	}

	state = models.NewConversationState("s1", "u1")
	classify(t, c, state, "plan my week")
	if !state.WantsScheduling || state.SessionMode != models.ModeSchedulingRequested {
		t.Errorf("expected scheduling flags initialized, got %+v", state)
	}
}
