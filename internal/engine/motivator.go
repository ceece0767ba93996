package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/store"
)

// motivatorFallbackMessage is the generic encouragement used whenever
// composing a personalized message fails. Never an error to the user.
const motivatorFallbackMessage = "Keep pushing forward! You're doing great! 🚀"

// DefaultPersona is used when the user has no stored persona preference.
const DefaultPersona = "Steve Jobs"

const motivatorSystemPrompt = "You write short motivational messages for a studying student in the voice of %s. " +
	"Two or three sentences, energetic, specific to studying. If a quote is provided, weave it in naturally."

// MotivatorHandler emits one encouragement message and always terminates
// the turn. It keeps no sub-dialogue state.
type MotivatorHandler struct {
	gen   genai.Generator
	store store.Store
}

// NewMotivatorHandler creates the motivational handler.
func NewMotivatorHandler(gen genai.Generator, s store.Store) *MotivatorHandler {
	return &MotivatorHandler{gen: gen, store: s}
}

// Name returns the handler's node label.
func (h *MotivatorHandler) Name() models.Node {
	return models.NodeMotivator
}

// Handle composes a persona-voiced message, degrading to the fixed fallback
// on any failure.
func (h *MotivatorHandler) Handle(ctx context.Context, state *models.ConversationState, userText string) (*HandlerResult, error) {
	persona := h.personaFor(state.UserID)
	response := h.compose(ctx, persona, userText)

	return &HandlerResult{
		Response: response,
		Patch: &models.StatePatch{
			NeedsMotivation: models.BoolPtr(false),
		},
		Next: models.NodeEnd,
	}, nil
}

// personaFor loads the user's persona preference; a missing profile is
// recoverable and falls back to the default.
func (h *MotivatorHandler) personaFor(userID string) string {
	if h.store == nil {
		return DefaultPersona
	}
	profile, err := h.store.GetUserProfile(userID)
	if err != nil {
		if !errors.Is(err, models.ErrProfileNotFound) {
			slog.Warn("MotivatorHandler: profile load failed, using default persona", "error", err, "userID", userID)
		}
		return DefaultPersona
	}
	if profile.PrimaryPersona == "" {
		return DefaultPersona
	}
	return profile.PrimaryPersona
}

func (h *MotivatorHandler) compose(ctx context.Context, persona, userText string) string {
	if h.gen == nil {
		return motivatorFallbackMessage
	}

	prompt := "The student said: " + userText
	if h.store != nil {
		quotes, err := h.store.GetQuotes(persona)
		if err != nil {
			slog.Warn("MotivatorHandler: quote lookup failed", "error", err, "persona", persona)
		} else if len(quotes) > 0 {
			prompt += fmt.Sprintf("\nQuote to draw on: %q - %s", quotes[0].Text, quotes[0].Author)
		}
	}

	text, err := h.gen.GeneratePrompt(ctx, fmt.Sprintf(motivatorSystemPrompt, persona), prompt)
	if err != nil || text == "" {
		slog.Warn("MotivatorHandler: generation failed, using fallback", "error", err)
		return motivatorFallbackMessage
	}
	return fmt.Sprintf("%s\n\n— %s", text, persona)
}
