package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studypal/studypal/internal/calendar"
	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/plan"
)

// Scheduling sub-dialogue prompts and fallbacks.
const (
	scheduleDetailsPrompt = "Great! What day and time window work for you? For example: Thursday 18:00-20:00."

	scheduleDeclinedMessage = "No problem! Let me know whenever you want to plan study time."

	scheduleAmbiguousPrompt = "Just to confirm - would you like me to create a study schedule? A simple yes or no works."

	scheduleMissingDayPrompt = "I still need the day. Which day should I plan for? For example: Thursday 18:00-20:00."

	scheduleMissingTimePrompt = "I still need a time window. When are you free that day? For example: 18:00-20:00."

	scheduleUnparsableMessage = "I couldn't work out a time window from that. Could you give me a day and times, like Thursday 18:00-20:00?"

	scheduleWindowTooSmallMessage = "That window is too short for even one 25-minute study block. Could you give me a longer stretch?"

	scheduleGenerationFailedMessage = "Sorry, I had trouble creating a schedule. Could you try describing your availability again?"

	scheduleSyncedSuffix = "Your study plan is on your calendar. Good luck!"

	scheduleSyncFailedMessage = "I created your schedule but couldn't reach your calendar, so it isn't synced yet. Say yes later to try again."
)

// startNowPhrases trigger an immediate tutoring session after scheduling.
var startNowPhrases = []string{"start now", "let's start", "lets start", "begin now", "start studying now"}

// SchedulerHandler runs the two-phase scheduling sub-dialogue and the
// schedule generation/sync paths.
type SchedulerHandler struct {
	planner  plan.Planner
	calendar calendar.Connector
}

// NewSchedulerHandler creates the scheduling handler.
func NewSchedulerHandler(planner plan.Planner, connector calendar.Connector) *SchedulerHandler {
	return &SchedulerHandler{planner: planner, calendar: connector}
}

// Name returns the handler's node label.
func (h *SchedulerHandler) Name() models.Node {
	return models.NodeScheduler
}

// Handle dispatches on the sub-dialogue phase: confirmation, details
// collection, or the normal generation/sync path.
func (h *SchedulerHandler) Handle(ctx context.Context, state *models.ConversationState, userText string) (*HandlerResult, error) {
	switch {
	case state.AwaitingScheduleConfirmation:
		return h.handleConfirmation(state, userText), nil
	case state.AwaitingScheduleDetails:
		return h.handleDetails(ctx, state, userText), nil
	default:
		return h.handleRequest(ctx, state, userText), nil
	}
}

// handleConfirmation is Phase A: yes advances to details collection, no ends
// the sub-dialogue, anything else re-prompts without advancing.
func (h *SchedulerHandler) handleConfirmation(state *models.ConversationState, userText string) *HandlerResult {
	switch {
	case IsNegative(userText):
		slog.Info("SchedulerHandler: confirmation declined", "sessionID", state.SessionID)
		return &HandlerResult{
			Response: scheduleDeclinedMessage,
			Patch: &models.StatePatch{
				AwaitingScheduleConfirmation: models.BoolPtr(false),
				AwaitingScheduleDetails:      models.BoolPtr(false),
				WantsScheduling:              models.BoolPtr(false),
			},
			Next: models.NodeEnd,
		}
	case IsAffirmative(userText):
		slog.Info("SchedulerHandler: confirmation accepted", "sessionID", state.SessionID)
		return &HandlerResult{
			Response: scheduleDetailsPrompt,
			Patch: &models.StatePatch{
				AwaitingScheduleDetails: models.BoolPtr(true),
				WantsScheduling:         models.BoolPtr(true),
			},
			Next: models.NodeEnd,
		}
	default:
		slog.Debug("SchedulerHandler: ambiguous confirmation reply, re-prompting")
		return &HandlerResult{Response: scheduleAmbiguousPrompt, Next: models.NodeEnd}
	}
}

// handleDetails is Phase B: both a day and a time window must be present
// before generation runs; a missing piece re-prompts with the flag kept.
func (h *SchedulerHandler) handleDetails(ctx context.Context, state *models.ConversationState, userText string) *HandlerResult {
	hasDay := HasDayReference(userText)
	hasTime := HasTimeReference(userText)
	if !hasDay {
		slog.Debug("SchedulerHandler: details missing day reference")
		return &HandlerResult{Response: scheduleMissingDayPrompt, Next: models.NodeEnd}
	}
	if !hasTime {
		slog.Debug("SchedulerHandler: details missing time reference")
		return &HandlerResult{Response: scheduleMissingTimePrompt, Next: models.NodeEnd}
	}

	freeText := userText
	if state.PendingScheduleRequest != "" {
		freeText = state.PendingScheduleRequest + "\n" + userText
	}

	result := h.generate(ctx, state, freeText, userText)
	if result.Patch != nil && result.Patch.LastSchedule != nil {
		// Generation succeeded; the sub-dialogue is over.
		result.Patch.AwaitingScheduleDetails = models.BoolPtr(false)
		result.Patch.PendingScheduleRequest = models.StringPtr("")
	}
	return result
}

// handleRequest is the normal path. Sync confirmation of an existing
// unsynced schedule is checked before new generation on every turn.
func (h *SchedulerHandler) handleRequest(ctx context.Context, state *models.ConversationState, userText string) *HandlerResult {
	if state.LastSchedule != nil && !state.LastSchedule.Synced && IsAffirmative(userText) {
		return h.sync(ctx, state, userText)
	}
	return h.generate(ctx, state, userText, userText)
}

// generate runs the planner and formats the outcome. Typed planner errors
// become clarifying re-prompts that keep the details flag raised so the next
// reply stays in the sub-dialogue.
func (h *SchedulerHandler) generate(ctx context.Context, state *models.ConversationState, freeText, userText string) *HandlerResult {
	input := freeText
	if !containsAny(input, []string{"study", "focus", "subject", "topic"}) {
		// No subject mentioned; give the planner a default.
		input += " studying General Topics"
	}

	schedule, err := h.planner.GenerateSchedule(ctx, input, state.LastAnalysis)
	if err != nil {
		return h.generationFailure(state, userText, err)
	}

	slog.Info("SchedulerHandler: schedule created",
		"sessionID", state.SessionID, "blocks", len(schedule.Blocks), "based_on_weak_points", schedule.BasedOnWeakPoints)

	result := &HandlerResult{
		Response: formatSchedule(schedule),
		Patch: &models.StatePatch{
			LastSchedule: schedule,
			SessionMode:  models.ModePtr(models.ModeScheduled),
		},
		Next: models.NodeEnd,
	}
	if containsAny(userText, startNowPhrases) {
		result.Next = models.NodeTutor
	}
	return result
}

// generationFailure maps planner errors onto clarifying prompts. The details
// flag is raised (or kept) so the follow-up reply returns here, and the raw
// request is kept for the retry.
func (h *SchedulerHandler) generationFailure(state *models.ConversationState, userText string, err error) *HandlerResult {
	var response string
	switch {
	case errors.Is(err, models.ErrUnparsableAvailability):
		response = scheduleUnparsableMessage
	case errors.Is(err, models.ErrWindowTooSmall):
		response = scheduleWindowTooSmallMessage
	default:
		slog.Error("SchedulerHandler: generation failed", "error", err, "sessionID", state.SessionID)
		response = scheduleGenerationFailedMessage
	}
	slog.Info("SchedulerHandler: re-prompting for availability", "sessionID", state.SessionID, "error", err)

	pending := state.PendingScheduleRequest
	if pending == "" {
		pending = userText
	}
	return &HandlerResult{
		Response: response,
		Patch: &models.StatePatch{
			AwaitingScheduleDetails: models.BoolPtr(true),
			WantsScheduling:         models.BoolPtr(true),
			PendingScheduleRequest:  models.StringPtr(pending),
		},
		Next: models.NodeEnd,
	}
}

// sync pushes the existing schedule to the calendar. Failure is non-fatal
// and leaves the schedule unsynced for another attempt.
func (h *SchedulerHandler) sync(ctx context.Context, state *models.ConversationState, userText string) *HandlerResult {
	slog.Info("SchedulerHandler: syncing existing schedule", "sessionID", state.SessionID)

	if err := calendar.SyncSchedule(ctx, h.calendar, state.LastSchedule); err != nil {
		slog.Warn("SchedulerHandler: calendar sync failed", "error", err, "sessionID", state.SessionID)
		return &HandlerResult{Response: scheduleSyncFailedMessage, Next: models.NodeEnd}
	}

	synced := *state.LastSchedule
	synced.Synced = true
	study := synced.StudyBlocks()

	result := &HandlerResult{
		Response: fmt.Sprintf("Synced %d study sessions to your calendar. %s", len(study), scheduleSyncedSuffix),
		Patch: &models.StatePatch{
			LastSchedule:    &synced,
			WantsScheduling: models.BoolPtr(false),
		},
		Next: models.NodeMotivator,
	}
	if containsAny(userText, startNowPhrases) {
		result.Next = models.NodeTutor
	}
	return result
}

// formatSchedule renders the first study blocks plus the sync offer.
func formatSchedule(schedule *models.Schedule) string {
	study := schedule.StudyBlocks()

	var b strings.Builder
	b.WriteString("I've created your study schedule!\n\n")
	fmt.Fprintf(&b, "Found %d study sessions:\n\n", len(study))

	shown := study
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for i, block := range shown {
		fmt.Fprintf(&b, "%d. %s - %s: %s\n", i+1, block.Start, block.End, block.Subject)
	}
	if schedule.BasedOnWeakPoints {
		b.WriteString("\nI prioritized the topics you struggled with last session.")
	}
	b.WriteString("\nWould you like me to sync this to your calendar?")
	return b.String()
}
