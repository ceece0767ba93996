// Package models defines the core data structures for StudyPal.
//
// It includes the conversation state record shared by the turn engine,
// the patch/reducer types used to mutate it, and the artifacts produced
// by the analyzer and scheduler handlers.
package models

import (
	"errors"
	"time"
)

// Intent identifies which handler should answer the current message.
type Intent string

const (
	// IntentTutor routes the message to the tutoring handler.
	IntentTutor Intent = "tutor"
	// IntentScheduler routes the message to the schedule-planning handler.
	IntentScheduler Intent = "scheduler"
	// IntentAnalyzer routes the message to the session-weakness analyzer.
	IntentAnalyzer Intent = "analyzer"
	// IntentMotivator routes the message to the motivational handler.
	IntentMotivator Intent = "motivator"
)

// IsValidIntent checks if the given intent label is supported.
func IsValidIntent(in Intent) bool {
	switch in {
	case IntentTutor, IntentScheduler, IntentAnalyzer, IntentMotivator:
		return true
	default:
		return false
	}
}

// Node names a vertex in the turn-execution graph.
type Node string

const (
	NodeRouter    Node = "router"
	NodeTutor     Node = "tutor"
	NodeScheduler Node = "scheduler"
	NodeAnalyzer  Node = "analyzer"
	NodeMotivator Node = "motivator"
	NodeEnd       Node = "end"
)

// SessionMode tracks where in a multi-step flow the conversation is.
type SessionMode string

const (
	ModeIdle                SessionMode = ""
	ModeSchedulingRequested SessionMode = "scheduling_requested"
	ModeScheduled           SessionMode = "scheduled"
	ModeActiveTutoring      SessionMode = "active_tutoring"
	ModeAnalysisRequested   SessionMode = "analysis_requested"
	ModeAnalysisCompleted   SessionMode = "analysis_completed"
	ModeMotivationRequested SessionMode = "motivation_requested"
	ModeComplete            SessionMode = "complete"
)

// Message roles within the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Error variables for better error handling and testability.
var (
	ErrEmptySessionID         = errors.New("session id cannot be empty")
	ErrEmptyMessage           = errors.New("message text cannot be empty")
	ErrProfileNotFound        = errors.New("user profile not found")
	ErrUnparsableAvailability = errors.New("availability text could not be parsed")
	ErrWindowTooSmall         = errors.New("availability window too small for one study block")
	ErrInvalidStatePatch      = errors.New("state patch violates sub-dialogue invariants")
)

// Message is a single entry in the append-only conversation log.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Severity classifies how much a student struggled with a topic.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// IsValidSeverity checks if the given severity tier is supported.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// WeakPoint represents a topic where the user struggled during a session.
type WeakPoint struct {
	Topic     string   `json:"topic"`
	Severity  Severity `json:"difficulty_level"`
	Evidence  []string `json:"evidence,omitempty"` // quotes from the conversation
	Frequency int      `json:"frequency,omitempty"`
}

// SessionAnalysis is the structured result of a session-weakness analysis.
type SessionAnalysis struct {
	WeakPoints     []WeakPoint    `json:"weak_points"`
	PriorityTopics []string       `json:"priority_topics"`      // ordered by severity
	FocusMinutes   map[string]int `json:"suggested_focus_time"` // topic -> minutes
	Summary        string         `json:"session_summary"`
	Timestamp      time.Time      `json:"timestamp"`
}

// BlockType distinguishes study blocks from breaks in a schedule.
type BlockType string

const (
	BlockStudy BlockType = "study"
	BlockBreak BlockType = "break"
)

// StudyBlock is one Pomodoro block within a generated schedule.
type StudyBlock struct {
	Type    BlockType `json:"type"`
	Subject string    `json:"subject,omitempty"` // empty for breaks
	Start   string    `json:"start"`             // HH:MM 24-hour
	End     string    `json:"end"`               // HH:MM 24-hour
}

// SchedulePreferences captures the availability extracted from free text.
type SchedulePreferences struct {
	StartTime string   `json:"start_time"` // HH:MM 24-hour
	EndTime   string   `json:"end_time"`   // HH:MM 24-hour
	Subjects  []string `json:"subjects"`
	Notes     string   `json:"notes,omitempty"`
}

// Schedule is the plan produced by the schedule generator.
type Schedule struct {
	Preferences       SchedulePreferences `json:"preferences"`
	Blocks            []StudyBlock        `json:"sessions"`
	BasedOnWeakPoints bool                `json:"based_on_weak_points"`
	Synced            bool                `json:"synced"`
	CreatedAt         time.Time           `json:"created_at"`
}

// StudyBlocks returns only the study blocks of the schedule.
func (s *Schedule) StudyBlocks() []StudyBlock {
	var blocks []StudyBlock
	for _, b := range s.Blocks {
		if b.Type == BlockStudy {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// UserProfile holds the persisted per-user preferences consumed by the
// motivator and scheduler handlers. Absence of a profile is recoverable.
type UserProfile struct {
	UserID         string    `json:"user_id"`
	Name           string    `json:"name,omitempty"`
	PrimaryPersona string    `json:"primary_persona,omitempty"`
	Weaknesses     []string  `json:"weaknesses,omitempty"`
	Goal           string    `json:"goal,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Quote is a persona-attributed quote used by the motivator.
type Quote struct {
	Text    string `json:"text"`
	Author  string `json:"author"`
	Persona string `json:"persona"`
}

// Snippet is one retrieved chunk of study material.
type Snippet struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}
