package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
)

// MinHumanMessages is the transcript threshold below which analysis refuses
// to run.
const MinHumanMessages = 2

const minTranscriptMessage = "I need more conversation to analyze. Ask me a few questions first!"

const analyzerSystemPrompt = `You are an expert educational psychologist analyzing student-tutor conversations to identify learning difficulties.

Identify topics where the student struggled. Signals include explicit confusion ("I don't understand", "I'm confused about"), repeated questions on the same topic, requests for simpler explanations, and mixing up related concepts.

Severity tiers:
- mild: asked 1-2 times, minor confusion
- moderate: asked 3+ times, explicit confusion, requested simpler explanations
- severe: 5+ mentions, conceptual confusion, mixing concepts, high frustration

Respond ONLY with JSON in this shape:
{
  "weak_points": [{"topic": "...", "difficulty_level": "mild|moderate|severe", "evidence": ["..."], "frequency": 1}],
  "priority_topics": ["..."],
  "suggested_focus_time": {"topic": 25},
  "session_summary": "..."
}`

// Focus minutes per severity tier for the heuristic fallback.
const (
	focusMinutesSevere   = 40
	focusMinutesModerate = 25
	focusMinutesMild     = 15
)

// AnalyzerHandler reviews the transcript for weak points and always offers
// a follow-up schedule afterwards.
type AnalyzerHandler struct {
	gen genai.Generator
}

// NewAnalyzerHandler creates the session analyzer.
func NewAnalyzerHandler(gen genai.Generator) *AnalyzerHandler {
	return &AnalyzerHandler{gen: gen}
}

// Name returns the handler's node label.
func (h *AnalyzerHandler) Name() models.Node {
	return models.NodeAnalyzer
}

// Handle analyzes the conversation. Below the transcript threshold it
// answers without side effects; otherwise it stores the analysis and opens
// the scheduling confirmation sub-dialogue.
func (h *AnalyzerHandler) Handle(ctx context.Context, state *models.ConversationState, userText string) (*HandlerResult, error) {
	if state.HumanMessageCount() < MinHumanMessages {
		slog.Info("AnalyzerHandler: transcript too short", "sessionID", state.SessionID, "human_messages", state.HumanMessageCount())
		return &HandlerResult{Response: minTranscriptMessage, Next: models.NodeEnd}, nil
	}

	analysis := h.analyze(ctx, state)
	response := formatAnalysis(analysis)

	return &HandlerResult{
		Response: response,
		Patch: &models.StatePatch{
			LastAnalysis:                 analysis,
			SessionMode:                  models.ModePtr(models.ModeAnalysisCompleted),
			AwaitingScheduleConfirmation: models.BoolPtr(true),
		},
		Next: models.NodeEnd,
	}, nil
}

// analyze asks the model for a structured result and falls back to the
// confusion-signal heuristic when the call or its JSON is unusable.
func (h *AnalyzerHandler) analyze(ctx context.Context, state *models.ConversationState) *models.SessionAnalysis {
	if h.gen != nil {
		raw, err := h.gen.GeneratePrompt(ctx, analyzerSystemPrompt, buildTranscript(state.Messages))
		if err == nil {
			analysis, perr := parseAnalysis(raw)
			if perr == nil {
				return analysis
			}
			slog.Warn("AnalyzerHandler: model analysis unusable, using heuristic", "error", perr)
		} else {
			slog.Warn("AnalyzerHandler: model unavailable, using heuristic", "error", err)
		}
	}
	return heuristicAnalysis(state.Messages)
}

// buildTranscript renders the conversation for the analysis prompt.
func buildTranscript(messages []models.Message) string {
	var b strings.Builder
	b.WriteString("Conversation Transcript:\n")
	for _, m := range messages {
		role := "Student"
		if m.Role == models.RoleAssistant {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Text)
	}
	b.WriteString("\nAnalyze this tutoring session and identify topics where the student struggled.")
	return b.String()
}

// parseAnalysis validates the model's JSON response.
func parseAnalysis(raw string) (*models.SessionAnalysis, error) {
	var analysis models.SessionAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("analysis model must return valid JSON: %w", err)
	}
	for _, wp := range analysis.WeakPoints {
		if wp.Topic == "" {
			return nil, fmt.Errorf("analysis weak point missing topic")
		}
		if !models.IsValidSeverity(wp.Severity) {
			return nil, fmt.Errorf("analysis weak point has unknown severity %q", wp.Severity)
		}
	}
	analysis.Timestamp = time.Now()
	return &analysis, nil
}

var confusionPhrases = []string{
	"don't understand", "dont understand", "confused", "confusing",
	"lost", "stuck", "makes no sense", "don't get", "dont get",
	"too hard", "difficult", "struggling", "explain again", "simpler",
}

// heuristicAnalysis scans student messages for confusion signals and turns
// their content words into weak points. Frequency drives the severity tier.
func heuristicAnalysis(messages []models.Message) *models.SessionAnalysis {
	counts := make(map[string]int)
	evidence := make(map[string][]string)

	for _, m := range messages {
		if m.Role != models.RoleUser || !containsAny(m.Text, confusionPhrases) {
			continue
		}
		for _, topic := range topicWords(m.Text) {
			counts[topic]++
			if len(evidence[topic]) < 3 {
				evidence[topic] = append(evidence[topic], m.Text)
			}
		}
	}

	analysis := &models.SessionAnalysis{
		FocusMinutes: make(map[string]int),
		Timestamp:    time.Now(),
	}
	for _, tier := range []models.Severity{models.SeveritySevere, models.SeverityModerate, models.SeverityMild} {
		for topic, n := range counts {
			if severityFor(n) != tier {
				continue
			}
			analysis.WeakPoints = append(analysis.WeakPoints, models.WeakPoint{
				Topic:     topic,
				Severity:  tier,
				Evidence:  evidence[topic],
				Frequency: n,
			})
			analysis.PriorityTopics = append(analysis.PriorityTopics, topic)
			analysis.FocusMinutes[topic] = focusMinutesFor(tier)
		}
	}

	if len(analysis.WeakPoints) == 0 {
		analysis.Summary = "No significant difficulties detected in this session."
	} else {
		analysis.Summary = fmt.Sprintf("Detected %d topics with confusion signals.", len(analysis.WeakPoints))
	}
	return analysis
}

func severityFor(frequency int) models.Severity {
	switch {
	case frequency >= 5:
		return models.SeveritySevere
	case frequency >= 3:
		return models.SeverityModerate
	default:
		return models.SeverityMild
	}
}

func focusMinutesFor(tier models.Severity) int {
	switch tier {
	case models.SeveritySevere:
		return focusMinutesSevere
	case models.SeverityModerate:
		return focusMinutesModerate
	default:
		return focusMinutesMild
	}
}

// topicWords extracts candidate topic words from a confused message,
// skipping the confusion vocabulary itself.
func topicWords(text string) []string {
	skip := map[string]bool{
		"understand": true, "confused": true, "confusing": true, "lost": true,
		"stuck": true, "hard": true, "difficult": true, "struggling": true,
		"explain": true, "again": true, "simpler": true, "sense": true,
		"makes": true, "don't": true, "dont": true, "really": true,
		"still": true, "about": true, "with": true, "this": true, "that": true,
		"what": true, "when": true, "where": true, "have": true, "just": true,
	}
	var topics []string
	for _, tok := range tokenize(text) {
		if len(tok) < 4 || skip[tok] {
			continue
		}
		topics = append(topics, tok)
	}
	return topics
}

// formatAnalysis renders the analysis and always offers the schedule
// follow-up, with or without weak points.
func formatAnalysis(analysis *models.SessionAnalysis) string {
	var b strings.Builder
	if len(analysis.WeakPoints) == 0 {
		b.WriteString("Great session! No significant difficulties detected.")
	} else {
		b.WriteString("Session Analysis:\n\n")
		fmt.Fprintf(&b, "I identified %d areas to focus on:\n\n", len(analysis.WeakPoints))
		shown := analysis.WeakPoints
		if len(shown) > 3 {
			shown = shown[:3]
		}
		for i, wp := range shown {
			fmt.Fprintf(&b, "%d. %s - %s difficulty\n", i+1, strings.ToUpper(wp.Topic), wp.Severity)
		}
	}
	b.WriteString("\n\nWould you like me to create a study schedule focusing on these topics?")
	return b.String()
}
