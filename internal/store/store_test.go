package store

import (
	"errors"
	"testing"
	"time"

	"github.com/studypal/studypal/internal/models"
)

func TestInMemoryStoreSaveAndGetConversationState(t *testing.T) {
	s := NewInMemoryStore()

	state := models.NewConversationState("sess-1", "user-1")
	state.Messages = append(state.Messages, models.Message{Role: models.RoleUser, Text: "hello", Timestamp: time.Now()})
	state.TutorActive = true

	if err := s.SaveConversationState(*state); err != nil {
		t.Fatalf("SaveConversationState failed: %v", err)
	}

	got, err := s.GetConversationState("sess-1")
	if err != nil {
		t.Fatalf("GetConversationState failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected state, got nil")
	}
	if got.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", got.UserID)
	}
	if !got.TutorActive {
		t.Error("expected TutorActive to be preserved")
	}
	if len(got.Messages) != 1 || got.Messages[0].Text != "hello" {
		t.Errorf("expected one message 'hello', got %+v", got.Messages)
	}
}

func TestInMemoryStoreGetConversationStateAbsent(t *testing.T) {
	s := NewInMemoryStore()

	got, err := s.GetConversationState("no-such-session")
	if err != nil {
		t.Fatalf("expected nil error for absent state, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil state for absent session, got %+v", got)
	}
}

func TestInMemoryStoreSaveConversationStateEmptyID(t *testing.T) {
	s := NewInMemoryStore()

	err := s.SaveConversationState(models.ConversationState{UserID: "user-1"})
	if !errors.Is(err, models.ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestInMemoryStoreDeleteConversationState(t *testing.T) {
	s := NewInMemoryStore()

	state := models.NewConversationState("sess-1", "user-1")
	if err := s.SaveConversationState(*state); err != nil {
		t.Fatalf("SaveConversationState failed: %v", err)
	}
	if err := s.DeleteConversationState("sess-1"); err != nil {
		t.Fatalf("DeleteConversationState failed: %v", err)
	}
	got, err := s.GetConversationState("sess-1")
	if err != nil {
		t.Fatalf("GetConversationState failed: %v", err)
	}
	if got != nil {
		t.Error("expected state to be gone after delete")
	}

	// Deleting a missing session is not an error.
	if err := s.DeleteConversationState("sess-1"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestInMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()

	state := models.NewConversationState("sess-1", "user-1")
	if err := s.SaveConversationState(*state); err != nil {
		t.Fatalf("SaveConversationState failed: %v", err)
	}

	first, err := s.GetConversationState("sess-1")
	if err != nil {
		t.Fatalf("GetConversationState failed: %v", err)
	}
	first.UserID = "mutated"

	second, err := s.GetConversationState("sess-1")
	if err != nil {
		t.Fatalf("GetConversationState failed: %v", err)
	}
	if second.UserID != "user-1" {
		t.Errorf("mutating a retrieved state leaked into the store: got %s", second.UserID)
	}
}

func TestInMemoryStoreUserProfiles(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.GetUserProfile("user-1")
	if !errors.Is(err, models.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound for absent profile, got %v", err)
	}

	profile := models.UserProfile{
		UserID:         "user-1",
		Name:           "Dana",
		PrimaryPersona: "coach",
		Weaknesses:     []string{"calculus"},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.SaveUserProfile(profile); err != nil {
		t.Fatalf("SaveUserProfile failed: %v", err)
	}

	got, err := s.GetUserProfile("user-1")
	if err != nil {
		t.Fatalf("GetUserProfile failed: %v", err)
	}
	if got.Name != "Dana" || got.PrimaryPersona != "coach" {
		t.Errorf("unexpected profile round-trip: %+v", got)
	}
}

func TestInMemoryStoreQuotesByPersona(t *testing.T) {
	s := NewInMemoryStore()

	quotes := []models.Quote{
		{Text: "Stay hungry.", Author: "Jobs", Persona: "founder"},
		{Text: "Fall seven times, stand up eight.", Author: "Proverb", Persona: "coach"},
		{Text: "Simplicity is the soul of efficiency.", Author: "Brandeis", Persona: "coach"},
	}
	for _, q := range quotes {
		if err := s.AddQuote(q); err != nil {
			t.Fatalf("AddQuote failed: %v", err)
		}
	}

	coach, err := s.GetQuotes("Coach")
	if err != nil {
		t.Fatalf("GetQuotes failed: %v", err)
	}
	if len(coach) != 2 {
		t.Errorf("expected 2 coach quotes (case-insensitive), got %d", len(coach))
	}

	all, err := s.GetQuotes("")
	if err != nil {
		t.Fatalf("GetQuotes failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 quotes for empty persona, got %d", len(all))
	}
}

func TestInMemoryStoreSearchSnippets(t *testing.T) {
	s := NewInMemoryStore()

	snippets := []models.Snippet{
		{Source: "notes/derivatives.md", Content: "The derivative measures instantaneous rate of change. Derivative rules include the chain rule."},
		{Source: "notes/integrals.md", Content: "Integration reverses differentiation."},
		{Source: "notes/limits.md", Content: "A derivative is defined as a limit."},
	}
	for _, sn := range snippets {
		if err := s.AddSnippet(sn); err != nil {
			t.Fatalf("AddSnippet failed: %v", err)
		}
	}

	got, err := s.SearchSnippets("Derivative", 2)
	if err != nil {
		t.Fatalf("SearchSnippets failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2 results, got %d", len(got))
	}
	// Denser match first.
	if got[0].Source != "notes/derivatives.md" {
		t.Errorf("expected densest snippet first, got %s", got[0].Source)
	}

	none, err := s.SearchSnippets("quantum", 5)
	if err != nil {
		t.Fatalf("SearchSnippets failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}
