package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
)

// Decision is the outcome of the tutoring exit-intent check.
type Decision string

const (
	DecisionContinue Decision = "CONTINUE"
	DecisionEnd      Decision = "END"
)

// ExitDecider disambiguates farewell-flavored messages during tutoring:
// "I'm done with this problem, give me another" continues the session while
// "I'm done for today" ends it. It only runs after the keyword pre-filter
// found a trigger word.
type ExitDecider interface {
	Decide(ctx context.Context, text string, history []models.Message) (Decision, error)
}

// IntentModel classifies a message into one handler label when the keyword
// fast path finds no match.
type IntentModel interface {
	Classify(ctx context.Context, text string, history []models.Message) (models.Intent, error)
}

const exitDeciderPrompt = "You supervise a tutoring conversation. The student may want to end the " +
	"session or just move to the next problem.\n" +
	"Reply with exactly one word: END if the student wants to stop studying for now, " +
	"CONTINUE if they want to keep going (another problem, another question, a follow-up).\n"

// ModelExitDecider asks the language model for a CONTINUE/END call.
type ModelExitDecider struct {
	gen genai.Generator
}

// NewModelExitDecider creates a model-backed exit decider.
func NewModelExitDecider(gen genai.Generator) *ModelExitDecider {
	return &ModelExitDecider{gen: gen}
}

// Decide asks the model whether the student is ending the session. Output
// containing END (and not CONTINUE) ends it; anything else continues.
func (d *ModelExitDecider) Decide(ctx context.Context, text string, history []models.Message) (Decision, error) {
	raw, err := d.gen.GeneratePrompt(ctx, exitDeciderPrompt, "Student message: "+text)
	if err != nil {
		return DecisionContinue, err
	}
	label := strings.ToUpper(strings.TrimSpace(raw))
	slog.Debug("ModelExitDecider.Decide result", "label", label)
	if strings.Contains(label, "CONTINUE") {
		return DecisionContinue, nil
	}
	if strings.Contains(label, "END") {
		return DecisionEnd, nil
	}
	return DecisionContinue, nil
}

// HeuristicExitDecider is the deterministic fallback used when no model is
// configured: a trigger word ends the session unless the message also asks
// for more work.
type HeuristicExitDecider struct{}

var continueTokens = map[string]bool{
	"another": true, "more": true, "next": true, "again": true, "else": true,
}

// Decide ends the session on a trigger word unless continuation vocabulary
// appears in the same message.
func (HeuristicExitDecider) Decide(ctx context.Context, text string, history []models.Message) (Decision, error) {
	if hasToken(text, continueTokens) {
		return DecisionContinue, nil
	}
	if HasExitTrigger(text) {
		return DecisionEnd, nil
	}
	return DecisionContinue, nil
}

const intentModelPrompt = "You route messages for a study assistant. Classify the message into exactly " +
	"one of these labels: tutor, scheduler, analyzer, motivator.\n" +
	"tutor: questions about study material or general conversation.\n" +
	"scheduler: planning study time or calendars.\n" +
	"analyzer: reviewing how a study session went.\n" +
	"motivator: asking for encouragement.\n" +
	"Reply with the label only.\n"

// ModelIntentClassifier is the model-backed intent fallback.
type ModelIntentClassifier struct {
	gen genai.Generator
}

// NewModelIntentClassifier creates a model-backed intent classifier.
func NewModelIntentClassifier(gen genai.Generator) *ModelIntentClassifier {
	return &ModelIntentClassifier{gen: gen}
}

// Classify returns the model's label. Unknown labels and failures fall back
// to tutor, the safest continuation.
func (c *ModelIntentClassifier) Classify(ctx context.Context, text string, history []models.Message) (models.Intent, error) {
	raw, err := c.gen.GeneratePrompt(ctx, intentModelPrompt, "Message: "+text)
	if err != nil {
		return models.IntentTutor, err
	}
	label := models.Intent(strings.ToLower(strings.TrimSpace(raw)))
	if !models.IsValidIntent(label) {
		slog.Debug("ModelIntentClassifier.Classify unknown label, defaulting to tutor", "label", string(label))
		return models.IntentTutor, nil
	}
	return label, nil
}
