package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/retrieval"
)

const tutorSystemPrompt = `You are a helpful AI tutor assisting a student with their study materials.

Your task:
1. Read the context provided from the student's study materials
2. Read the conversation so far to understand what the student is asking about
3. Answer their question based on the context and conversation history
4. If the student is answering a quiz question, grade their answer and provide feedback
5. If you can answer from the context, give a clear, helpful answer
6. If the context doesn't help answer the question, say so and summarize what the materials do contain

Be conversational, helpful, and remember what you discussed earlier!`

const tutorFallbackMessage = "Sorry, I'm having trouble answering right now. Could you ask me again in a moment?"

const tutorWrapUpMessage = "Great work today! Let's take a look at how the session went."

// TutorHandler runs the multi-turn tutoring loop. While the loop is active
// every turn starts with an exit-intent check; the loop is re-entered by the
// router on the next user turn, never re-invoked within the same turn.
type TutorHandler struct {
	gen       genai.Generator
	retriever retrieval.Retriever
	exit      ExitDecider
}

// NewTutorHandler creates the tutoring handler.
func NewTutorHandler(gen genai.Generator, retriever retrieval.Retriever, exit ExitDecider) *TutorHandler {
	return &TutorHandler{gen: gen, retriever: retriever, exit: exit}
}

// Name returns the handler's node label.
func (h *TutorHandler) Name() models.Node {
	return models.NodeTutor
}

// Handle answers the student's question, or ends the session when the exit
// check fires.
func (h *TutorHandler) Handle(ctx context.Context, state *models.ConversationState, userText string) (*HandlerResult, error) {
	if state.TutorActive && HasExitTrigger(userText) {
		decision := DecisionContinue
		if h.exit != nil {
			var err error
			decision, err = h.exit.Decide(ctx, userText, state.Messages)
			if err != nil {
				// An unreachable decider must not end a session by accident.
				slog.Warn("TutorHandler: exit decider failed, continuing session", "error", err)
				decision = DecisionContinue
			}
		}
		if decision == DecisionEnd {
			slog.Info("TutorHandler: session ending", "sessionID", state.SessionID)
			return &HandlerResult{
				Response: tutorWrapUpMessage,
				Patch: &models.StatePatch{
					TutorActive: models.BoolPtr(false),
					SessionMode: models.ModePtr(models.ModeAnalysisRequested),
					NextHandler: models.NodePtr(models.NodeAnalyzer),
				},
			}, nil
		}
	}

	patch := &models.StatePatch{}
	if !state.TutorActive {
		patch.TutorActive = models.BoolPtr(true)
		patch.SessionMode = models.ModePtr(models.ModeActiveTutoring)
	}

	answer := h.answer(ctx, state, userText)
	return &HandlerResult{Response: answer, Patch: patch}, nil
}

// answer retrieves study material and generates a reply. Retrieval failures
// degrade to answering without context; generation failures degrade to a
// fixed apology.
func (h *TutorHandler) answer(ctx context.Context, state *models.ConversationState, userText string) string {
	var snippets []models.Snippet
	if h.retriever != nil {
		var err error
		snippets, err = h.retriever.Retrieve(ctx, userText)
		if err != nil {
			slog.Warn("TutorHandler: retrieval failed, answering without context", "error", err)
			snippets = nil
		}
	}
	slog.Debug("TutorHandler: retrieved context", "chunks", len(snippets))

	if h.gen == nil {
		return tutorFallbackMessage
	}

	system := tutorSystemPrompt
	if len(snippets) > 0 {
		var b strings.Builder
		b.WriteString("\n\nContext from study materials:\n")
		for i, sn := range snippets {
			fmt.Fprintf(&b, "[Chunk %d] %s\n", i+1, sn.Content)
		}
		system += b.String()
	} else {
		system += "\n\nNo study materials matched this question; answer from general knowledge and say the materials did not cover it."
	}

	answer, err := h.gen.GenerateWithMessages(ctx, system, state.Messages)
	if err != nil {
		slog.Error("TutorHandler: generation failed", "error", err)
		return tutorFallbackMessage
	}
	return answer
}
