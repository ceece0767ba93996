package engine

import (
	"context"
	"log/slog"

	"github.com/studypal/studypal/internal/models"
)

// IntentClassifier decides which handler answers the current message.
//
// Precedence: an open scheduling sub-dialogue owns the turn, then a pending
// next-handler hint left by the previous turn, then a sync confirmation for
// an unsynced schedule, then an active tutoring loop, then keyword matching,
// and finally the model-backed fallback.
type IntentClassifier struct {
	model IntentModel
}

// NewIntentClassifier creates a classifier. The model may be nil, in which
// case unmatched messages default to tutor.
func NewIntentClassifier(model IntentModel) *IntentClassifier {
	return &IntentClassifier{model: model}
}

// Classify picks the intent for the message and returns a patch that
// initializes the chosen handler's mode flags.
func (c *IntentClassifier) Classify(ctx context.Context, state *models.ConversationState, text string) (models.Intent, *models.StatePatch) {
	intent := c.resolve(ctx, state, text)
	slog.Info("IntentClassifier.Classify resolved", "sessionID", state.SessionID, "intent", intent)

	patch := &models.StatePatch{CurrentIntent: models.IntentPtr(intent)}
	if state.NextHandler != "" {
		// The hint is consumed whether or not it won; stale hints must not
		// leak into later turns.
		patch.NextHandler = models.NodePtr(models.Node(""))
	}

	switch intent {
	case models.IntentScheduler:
		if !state.AwaitingScheduleConfirmation && !state.AwaitingScheduleDetails {
			patch.WantsScheduling = models.BoolPtr(true)
			patch.SessionMode = models.ModePtr(models.ModeSchedulingRequested)
		}
	case models.IntentAnalyzer:
		patch.SessionMode = models.ModePtr(models.ModeAnalysisRequested)
	case models.IntentMotivator:
		patch.NeedsMotivation = models.BoolPtr(true)
		patch.SessionMode = models.ModePtr(models.ModeMotivationRequested)
	}
	return intent, patch
}

func (c *IntentClassifier) resolve(ctx context.Context, state *models.ConversationState, text string) models.Intent {
	// Open sub-dialogues always own the next turn.
	if state.AwaitingScheduleConfirmation || state.AwaitingScheduleDetails {
		slog.Debug("IntentClassifier: scheduling sub-dialogue open, forcing scheduler")
		return models.IntentScheduler
	}

	// A handler asked for a specific follow-up on the previous turn.
	if hint := intentForNode(state.NextHandler); hint != "" {
		slog.Debug("IntentClassifier: honoring next-handler hint", "hint", state.NextHandler)
		return hint
	}

	// An unsynced schedule plus an affirmative reply is a sync confirmation.
	if state.LastSchedule != nil && !state.LastSchedule.Synced && IsAffirmative(text) {
		slog.Debug("IntentClassifier: unsynced schedule and affirmative reply, forcing scheduler")
		return models.IntentScheduler
	}

	// The tutoring loop keeps the turn while active; exit detection inside
	// the tutor decides when to leave.
	if state.TutorActive {
		return models.IntentTutor
	}

	switch {
	case MatchesScheduleIntent(text):
		return models.IntentScheduler
	case MatchesAnalyzeIntent(text):
		return models.IntentAnalyzer
	case MatchesMotivateIntent(text):
		return models.IntentMotivator
	}

	if c.model != nil {
		intent, err := c.model.Classify(ctx, text, state.Messages)
		if err != nil {
			slog.Warn("IntentClassifier: model fallback failed, defaulting to tutor", "error", err)
			return models.IntentTutor
		}
		return intent
	}
	return models.IntentTutor
}

// intentForNode maps a next-handler hint onto an intent label.
func intentForNode(n models.Node) models.Intent {
	switch n {
	case models.NodeTutor:
		return models.IntentTutor
	case models.NodeScheduler:
		return models.IntentScheduler
	case models.NodeAnalyzer:
		return models.IntentAnalyzer
	case models.NodeMotivator:
		return models.IntentMotivator
	default:
		return ""
	}
}
