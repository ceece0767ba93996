package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/retrieval"
	"github.com/studypal/studypal/internal/store"
)

func TestTutorEntrySetsFlags(t *testing.T) {
	h := NewTutorHandler(&stubGenerator{resp: "A derivative measures rate of change."}, nil, HeuristicExitDecider{})
	state := models.NewConversationState("s1", "u1")

	result, err := h.Handle(context.Background(), state, "What is a derivative?")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)
	if !state.TutorActive {
		t.Error("expected TutorActive set on entry")
	}
	if state.SessionMode != models.ModeActiveTutoring {
		t.Errorf("expected activeTutoring mode, got %s", state.SessionMode)
	}
	if result.Next != "" {
		t.Errorf("expected tutor to wait for the next turn, got next=%q", result.Next)
	}
}

func TestTutorExitEndsSession(t *testing.T) {
	h := NewTutorHandler(&stubGenerator{resp: "bye"}, nil, fixedExitDecider{decision: DecisionEnd})
	state := models.NewConversationState("s1", "u1")
	state.TutorActive = true
	state.SessionMode = models.ModeActiveTutoring

	result, err := h.Handle(context.Background(), state, "I'm done for today, thanks")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)
	if state.TutorActive {
		t.Error("expected TutorActive cleared on END")
	}
	if state.SessionMode != models.ModeAnalysisRequested {
		t.Errorf("expected analysisRequested mode, got %s", state.SessionMode)
	}
	if state.NextHandler != models.NodeAnalyzer {
		t.Errorf("expected analyzer hint, got %q", state.NextHandler)
	}
	if result.Response != tutorWrapUpMessage {
		t.Errorf("expected wrap-up message, got %q", result.Response)
	}
}

func TestTutorExitDeciderErrorContinues(t *testing.T) {
	decider := &erroringExitDecider{}
	h := NewTutorHandler(&stubGenerator{resp: "answer"}, nil, decider)
	state := models.NewConversationState("s1", "u1")
	state.TutorActive = true

	result, err := h.Handle(context.Background(), state, "I'm done for today")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	state.Apply(result.Patch)
	if !state.TutorActive {
		t.Error("a failing decider must not end the session")
	}
	if result.Response != "answer" {
		t.Errorf("expected normal answer, got %q", result.Response)
	}
}

type erroringExitDecider struct{}

func (erroringExitDecider) Decide(ctx context.Context, text string, history []models.Message) (Decision, error) {
	return DecisionEnd, errors.New("decider offline")
}

func TestTutorNoTriggerSkipsDecider(t *testing.T) {
	decider := &countingExitDecider{}
	h := NewTutorHandler(&stubGenerator{resp: "answer"}, nil, decider)
	state := models.NewConversationState("s1", "u1")
	state.TutorActive = true

	if _, err := h.Handle(context.Background(), state, "what about the chain rule?"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if decider.calls != 0 {
		t.Errorf("decider must be skipped without trigger words, ran %d times", decider.calls)
	}
}

type countingExitDecider struct {
	calls int
}

func (c *countingExitDecider) Decide(ctx context.Context, text string, history []models.Message) (Decision, error) {
	c.calls++
	return DecisionContinue, nil
}

func TestTutorGenerationFailureApologizes(t *testing.T) {
	h := NewTutorHandler(&stubGenerator{err: errors.New("model offline")}, nil, HeuristicExitDecider{})
	state := models.NewConversationState("s1", "u1")

	result, err := h.Handle(context.Background(), state, "What is a derivative?")
	if err != nil {
		t.Fatalf("handler must degrade, not fail: %v", err)
	}
	if result.Response != tutorFallbackMessage {
		t.Errorf("expected fallback message, got %q", result.Response)
	}
}

func TestTutorUsesRetrievedContext(t *testing.T) {
	s := store.NewInMemoryStore()
	if err := s.AddSnippet(models.Snippet{Source: "notes.md", Content: "The derivative measures instantaneous rate of change."}); err != nil {
		t.Fatalf("AddSnippet failed: %v", err)
	}

	gen := &recordingGenerator{resp: "Here's what your notes say."}
	h := NewTutorHandler(gen, retrieval.NewStoreRetriever(s), HeuristicExitDecider{})
	state := models.NewConversationState("s1", "u1")
	state.Messages = append(state.Messages, models.Message{Role: models.RoleUser, Text: "Explain the derivative to me"})

	if _, err := h.Handle(context.Background(), state, "Explain the derivative to me"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(gen.lastSystem, "instantaneous rate of change") {
		t.Error("expected retrieved snippet in the system prompt")
	}
}

type recordingGenerator struct {
	resp       string
	lastSystem string
}

func (r *recordingGenerator) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	r.lastSystem = systemPrompt
	return r.resp, nil
}

func (r *recordingGenerator) GenerateWithMessages(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	r.lastSystem = systemPrompt
	return r.resp, nil
}
