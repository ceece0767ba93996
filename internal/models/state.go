// Package models defines state management structures for StudyPal sessions.
package models

import "time"

// ConversationState is the per-session record mutated each turn.
//
// Messages is append-only: the engine concatenates, never reorders or
// truncates. Scalars and flags are overwritten by reducer-merged patches.
type ConversationState struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	Messages []Message `json:"messages"`

	// Transient routing hints, overwritten each turn.
	CurrentIntent Intent `json:"current_intent,omitempty"`
	NextHandler   Node   `json:"next_handler,omitempty"`

	SessionMode SessionMode `json:"session_mode,omitempty"`

	// Flags, each owned by exactly one handler.
	TutorActive                  bool `json:"tutor_active"`
	AwaitingScheduleConfirmation bool `json:"awaiting_schedule_confirmation"`
	AwaitingScheduleDetails      bool `json:"awaiting_schedule_details"`
	WantsScheduling              bool `json:"wants_scheduling"`
	NeedsMotivation              bool `json:"needs_motivation"`

	LastAnalysis           *SessionAnalysis `json:"last_analysis,omitempty"`
	LastSchedule           *Schedule        `json:"last_schedule,omitempty"`
	PendingScheduleRequest string           `json:"pending_schedule_request,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates a state record with defaults for a session.
func NewConversationState(sessionID, userID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		SessionID: sessionID,
		UserID:    userID,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HumanMessageCount returns the number of user-authored messages in the log.
func (s *ConversationState) HumanMessageCount() int {
	count := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			count++
		}
	}
	return count
}

// StatePatch is the reducer input returned by handlers and the router.
//
// Messages are concatenated onto the log; every other field overwrites the
// current value only when set (non-nil). Flags travel as pointers so a
// handler can distinguish "leave alone" from "set false".
type StatePatch struct {
	Messages []Message

	CurrentIntent *Intent
	NextHandler   *Node
	SessionMode   *SessionMode

	TutorActive                  *bool
	AwaitingScheduleConfirmation *bool
	AwaitingScheduleDetails      *bool
	WantsScheduling              *bool
	NeedsMotivation              *bool

	LastAnalysis           *SessionAnalysis
	LastSchedule           *Schedule
	PendingScheduleRequest *string
}

// Validate rejects patches that would leave both scheduling sub-dialogue
// flags raised at once. Entering one phase must clear the other.
func (p *StatePatch) Validate() error {
	if p.AwaitingScheduleConfirmation != nil && p.AwaitingScheduleDetails != nil &&
		*p.AwaitingScheduleConfirmation && *p.AwaitingScheduleDetails {
		return ErrInvalidStatePatch
	}
	return nil
}

// Apply merges the patch into the state: messages concatenate, scalars and
// flags overwrite. The patch must pass Validate first; Apply additionally
// clears the sibling sub-dialogue flag when one is raised.
func (s *ConversationState) Apply(p *StatePatch) {
	if p == nil {
		return
	}
	s.Messages = append(s.Messages, p.Messages...)

	if p.CurrentIntent != nil {
		s.CurrentIntent = *p.CurrentIntent
	}
	if p.NextHandler != nil {
		s.NextHandler = *p.NextHandler
	}
	if p.SessionMode != nil {
		s.SessionMode = *p.SessionMode
	}
	if p.TutorActive != nil {
		s.TutorActive = *p.TutorActive
	}
	if p.AwaitingScheduleConfirmation != nil {
		s.AwaitingScheduleConfirmation = *p.AwaitingScheduleConfirmation
		if s.AwaitingScheduleConfirmation {
			s.AwaitingScheduleDetails = false
		}
	}
	if p.AwaitingScheduleDetails != nil {
		s.AwaitingScheduleDetails = *p.AwaitingScheduleDetails
		if s.AwaitingScheduleDetails {
			s.AwaitingScheduleConfirmation = false
		}
	}
	if p.WantsScheduling != nil {
		s.WantsScheduling = *p.WantsScheduling
	}
	if p.NeedsMotivation != nil {
		s.NeedsMotivation = *p.NeedsMotivation
	}
	if p.LastAnalysis != nil {
		s.LastAnalysis = p.LastAnalysis
	}
	if p.LastSchedule != nil {
		s.LastSchedule = p.LastSchedule
	}
	if p.PendingScheduleRequest != nil {
		s.PendingScheduleRequest = *p.PendingScheduleRequest
	}
	s.UpdatedAt = time.Now()
}

// Reset restores the state record to session defaults, preserving identity.
// Calling it on an already-default state is a no-op.
func (s *ConversationState) Reset() {
	s.Messages = []Message{}
	s.CurrentIntent = ""
	s.NextHandler = ""
	s.SessionMode = ModeIdle
	s.TutorActive = false
	s.AwaitingScheduleConfirmation = false
	s.AwaitingScheduleDetails = false
	s.WantsScheduling = false
	s.NeedsMotivation = false
	s.LastAnalysis = nil
	s.LastSchedule = nil
	s.PendingScheduleRequest = ""
	s.UpdatedAt = time.Now()
}

// Helper constructors for pointer-valued patch fields.

// BoolPtr returns a pointer to b for use in a StatePatch.
func BoolPtr(b bool) *bool { return &b }

// StringPtr returns a pointer to v for use in a StatePatch.
func StringPtr(v string) *string { return &v }

// IntentPtr returns a pointer to in for use in a StatePatch.
func IntentPtr(in Intent) *Intent { return &in }

// NodePtr returns a pointer to n for use in a StatePatch.
func NodePtr(n Node) *Node { return &n }

// ModePtr returns a pointer to m for use in a StatePatch.
func ModePtr(m SessionMode) *SessionMode { return &m }
