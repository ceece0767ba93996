package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studypal/studypal/internal/models"
)

func conversationWith(texts ...string) *models.ConversationState {
	state := models.NewConversationState("s1", "u1")
	for _, text := range texts {
		state.Messages = append(state.Messages,
			models.Message{Role: models.RoleUser, Text: text},
			models.Message{Role: models.RoleAssistant, Text: "Let me explain."},
		)
	}
	return state
}

func TestAnalyzerShortTranscript(t *testing.T) {
	h := NewAnalyzerHandler(nil)
	state := conversationWith("analyze my session")

	result, err := h.Handle(context.Background(), state, "analyze my session")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result.Response != minTranscriptMessage {
		t.Errorf("expected minimum-transcript message, got %q", result.Response)
	}
	if result.Patch != nil {
		t.Error("short transcript must produce no state patch")
	}
}

func TestAnalyzerParsesModelJSON(t *testing.T) {
	gen := &stubGenerator{resp: `{
		"weak_points": [
			{"topic": "derivatives", "difficulty_level": "severe", "evidence": ["asked 5 times"], "frequency": 5},
			{"topic": "limits", "difficulty_level": "mild", "evidence": [], "frequency": 1}
		],
		"priority_topics": ["derivatives", "limits"],
		"suggested_focus_time": {"derivatives": 40, "limits": 15},
		"session_summary": "Struggled with derivatives."
	}`}
	h := NewAnalyzerHandler(gen)
	state := conversationWith("what is a derivative?", "I still don't get derivatives", "analyze my session")

	result, err := h.Handle(context.Background(), state, "analyze my session")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)

	if state.LastAnalysis == nil || len(state.LastAnalysis.WeakPoints) != 2 {
		t.Fatalf("expected 2 weak points stored, got %+v", state.LastAnalysis)
	}
	if state.LastAnalysis.WeakPoints[0].Severity != models.SeveritySevere {
		t.Errorf("unexpected severity: %+v", state.LastAnalysis.WeakPoints[0])
	}
	if !state.AwaitingScheduleConfirmation {
		t.Error("analysis must open the scheduling confirmation sub-dialogue")
	}
	if state.SessionMode != models.ModeAnalysisCompleted {
		t.Errorf("expected analysisCompleted mode, got %s", state.SessionMode)
	}
	if !strings.Contains(result.Response, "DERIVATIVES") {
		t.Errorf("expected topic listed in response, got %q", result.Response)
	}
	if !strings.Contains(result.Response, "study schedule") {
		t.Errorf("expected schedule offer in response, got %q", result.Response)
	}
}

func TestAnalyzerHeuristicFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model offline")}
	h := NewAnalyzerHandler(gen)
	state := conversationWith(
		"I'm really confused about derivatives",
		"derivatives are still confusing to me",
		"I don't understand derivatives at all",
	)

	result, err := h.Handle(context.Background(), state, "analyze my session")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)

	if state.LastAnalysis == nil {
		t.Fatal("expected heuristic analysis stored")
	}
	found := false
	for _, wp := range state.LastAnalysis.WeakPoints {
		if wp.Topic == "derivatives" {
			found = true
			if wp.Severity != models.SeverityModerate {
				t.Errorf("expected moderate severity for 3 mentions, got %s", wp.Severity)
			}
			if state.LastAnalysis.FocusMinutes["derivatives"] != focusMinutesModerate {
				t.Errorf("unexpected focus minutes: %d", state.LastAnalysis.FocusMinutes["derivatives"])
			}
		}
	}
	if !found {
		t.Errorf("expected 'derivatives' weak point, got %+v", state.LastAnalysis.WeakPoints)
	}
	if !state.AwaitingScheduleConfirmation {
		t.Error("heuristic path must still open the confirmation sub-dialogue")
	}
}

func TestAnalyzerNoWeakPointsStillOffersSchedule(t *testing.T) {
	h := NewAnalyzerHandler(nil)
	state := conversationWith("what is a derivative?", "makes sense, thanks")

	result, err := h.Handle(context.Background(), state, "review my session")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)

	if !strings.Contains(result.Response, "Great session") {
		t.Errorf("expected clean-session message, got %q", result.Response)
	}
	if !state.AwaitingScheduleConfirmation {
		t.Error("confirmation sub-dialogue must open even without weak points")
	}
}

func TestAnalyzerRejectsInvalidSeverity(t *testing.T) {
	gen := &stubGenerator{resp: `{"weak_points": [{"topic": "math", "difficulty_level": "catastrophic"}], "session_summary": "x"}`}
	h := NewAnalyzerHandler(gen)
	state := conversationWith("question one", "question two")

	result, err := h.Handle(context.Background(), state, "analyze")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)
	// Invalid model output falls back to the heuristic, never crashes.
	if state.LastAnalysis == nil {
		t.Fatal("expected fallback analysis")
	}
	for _, wp := range state.LastAnalysis.WeakPoints {
		if !models.IsValidSeverity(wp.Severity) {
			t.Errorf("fallback produced invalid severity %q", wp.Severity)
		}
	}
}
