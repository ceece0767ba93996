package models

import (
	"errors"
	"testing"
	"time"
)

func TestApplyConcatenatesMessages(t *testing.T) {
	state := NewConversationState("sess-1", "user-1")
	state.Apply(&StatePatch{Messages: []Message{
		{Role: RoleUser, Text: "first", Timestamp: time.Now()},
	}})
	state.Apply(&StatePatch{Messages: []Message{
		{Role: RoleAssistant, Text: "second", Timestamp: time.Now()},
	}})

	if len(state.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(state.Messages))
	}
	if state.Messages[0].Text != "first" || state.Messages[1].Text != "second" {
		t.Errorf("messages out of order: %+v", state.Messages)
	}
}

func TestApplyOverwritesScalarsOnlyWhenSet(t *testing.T) {
	state := NewConversationState("sess-1", "user-1")
	state.CurrentIntent = IntentTutor
	state.TutorActive = true

	// A patch with no fields set leaves everything alone.
	state.Apply(&StatePatch{})
	if state.CurrentIntent != IntentTutor || !state.TutorActive {
		t.Errorf("empty patch mutated state: %+v", state)
	}

	state.Apply(&StatePatch{
		CurrentIntent: IntentPtr(IntentScheduler),
		TutorActive:   BoolPtr(false),
		SessionMode:   ModePtr(ModeSchedulingRequested),
	})
	if state.CurrentIntent != IntentScheduler {
		t.Errorf("expected intent scheduler, got %s", state.CurrentIntent)
	}
	if state.TutorActive {
		t.Error("expected TutorActive cleared")
	}
	if state.SessionMode != ModeSchedulingRequested {
		t.Errorf("expected scheduling_requested mode, got %s", state.SessionMode)
	}
}

func TestApplyRaisingOneAwaitingFlagClearsSibling(t *testing.T) {
	state := NewConversationState("sess-1", "user-1")
	state.AwaitingScheduleConfirmation = true

	state.Apply(&StatePatch{AwaitingScheduleDetails: BoolPtr(true)})

	if state.AwaitingScheduleConfirmation {
		t.Error("raising details flag must clear confirmation flag")
	}
	if !state.AwaitingScheduleDetails {
		t.Error("expected details flag raised")
	}

	state.Apply(&StatePatch{AwaitingScheduleConfirmation: BoolPtr(true)})
	if state.AwaitingScheduleDetails {
		t.Error("raising confirmation flag must clear details flag")
	}
}

func TestValidateRejectsBothAwaitingFlags(t *testing.T) {
	p := &StatePatch{
		AwaitingScheduleConfirmation: BoolPtr(true),
		AwaitingScheduleDetails:      BoolPtr(true),
	}
	if err := p.Validate(); !errors.Is(err, ErrInvalidStatePatch) {
		t.Errorf("expected ErrInvalidStatePatch, got %v", err)
	}

	ok := &StatePatch{
		AwaitingScheduleConfirmation: BoolPtr(true),
		AwaitingScheduleDetails:      BoolPtr(false),
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("expected valid patch, got %v", err)
	}
}

func TestResetPreservesIdentity(t *testing.T) {
	state := NewConversationState("sess-1", "user-1")
	state.Messages = append(state.Messages, Message{Role: RoleUser, Text: "hi", Timestamp: time.Now()})
	state.TutorActive = true
	state.AwaitingScheduleDetails = true
	state.LastSchedule = &Schedule{}
	state.PendingScheduleRequest = "schedule my week"

	state.Reset()

	if state.SessionID != "sess-1" || state.UserID != "user-1" {
		t.Errorf("reset must preserve identity, got %s/%s", state.SessionID, state.UserID)
	}
	if len(state.Messages) != 0 {
		t.Errorf("expected empty message log after reset, got %d", len(state.Messages))
	}
	if state.TutorActive || state.AwaitingScheduleDetails || state.AwaitingScheduleConfirmation {
		t.Error("expected all flags cleared after reset")
	}
	if state.LastSchedule != nil || state.PendingScheduleRequest != "" {
		t.Error("expected scheduling artifacts cleared after reset")
	}

	// Resetting an already-default state is a no-op apart from the timestamp.
	state.Reset()
	if len(state.Messages) != 0 || state.TutorActive {
		t.Error("second reset changed a default state")
	}
}

func TestHumanMessageCount(t *testing.T) {
	state := NewConversationState("sess-1", "user-1")
	state.Messages = []Message{
		{Role: RoleUser, Text: "what is a derivative?"},
		{Role: RoleAssistant, Text: "Good question. What do you already know?"},
		{Role: RoleUser, Text: "it measures change"},
	}
	if got := state.HumanMessageCount(); got != 2 {
		t.Errorf("expected 2 human messages, got %d", got)
	}
}

func TestIsValidIntent(t *testing.T) {
	for _, in := range []Intent{IntentTutor, IntentScheduler, IntentAnalyzer, IntentMotivator} {
		if !IsValidIntent(in) {
			t.Errorf("expected %s to be valid", in)
		}
	}
	if IsValidIntent("juggler") {
		t.Error("expected unknown intent to be invalid")
	}
}

func TestScheduleStudyBlocks(t *testing.T) {
	s := Schedule{Blocks: []StudyBlock{
		{Type: BlockStudy, Subject: "math", Start: "09:00", End: "09:25"},
		{Type: BlockBreak, Start: "09:25", End: "09:30"},
		{Type: BlockStudy, Subject: "physics", Start: "09:30", End: "09:55"},
	}}
	blocks := s.StudyBlocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 study blocks, got %d", len(blocks))
	}
	if blocks[0].Subject != "math" || blocks[1].Subject != "physics" {
		t.Errorf("unexpected study blocks: %+v", blocks)
	}
}
