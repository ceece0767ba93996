// Package plan builds Pomodoro study schedules from free-text availability.
//
// Preference extraction goes through the GenAI client when one is configured
// and falls back to a heuristic parser when the model is unavailable or
// returns something unusable.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
)

// Pomodoro timing defaults.
const (
	DefaultPomodoroMinutes = 25
	DefaultBreakMinutes    = 5
)

// preferencesPrompt instructs the model to return availability as JSON only.
const preferencesPrompt = "You are Study Pal's scheduling assistant.\n" +
	"Extract the user's study availability and subjects from the note below and respond ONLY with JSON.\n" +
	"Required keys: start_time (HH:MM 24-hour), end_time (HH:MM 24-hour), subjects (array of strings).\n" +
	"Optional key: notes (string) for assumptions or clarifications.\n" +
	"USER_NOTE: %s\n"

const preferencesSystemPrompt = "You help Study Pal students plan productive Pomodoro study sessions. Respond with JSON only."

// Planner turns free-text availability into a study schedule.
type Planner interface {
	// GenerateSchedule builds a schedule from the availability text, giving
	// analyzed weak topics priority over the user's listed subjects. It fails
	// with models.ErrUnparsableAvailability or models.ErrWindowTooSmall.
	GenerateSchedule(ctx context.Context, freeText string, analysis *models.SessionAnalysis) (*models.Schedule, error)
}

// PomodoroPlanner alternates fixed-length study blocks and short breaks
// across the availability window, cycling through the subject list.
type PomodoroPlanner struct {
	gen             genai.Generator
	pomodoroMinutes int
	breakMinutes    int
}

// NewPomodoroPlanner creates a planner with default block lengths. The
// generator may be nil, in which case only the heuristic parser runs.
func NewPomodoroPlanner(gen genai.Generator) *PomodoroPlanner {
	return &PomodoroPlanner{
		gen:             gen,
		pomodoroMinutes: DefaultPomodoroMinutes,
		breakMinutes:    DefaultBreakMinutes,
	}
}

// GenerateSchedule builds a Pomodoro schedule from free-text availability.
func (p *PomodoroPlanner) GenerateSchedule(ctx context.Context, freeText string, analysis *models.SessionAnalysis) (*models.Schedule, error) {
	slog.Debug("PomodoroPlanner.GenerateSchedule invoked", "text_len", len(freeText), "has_analysis", analysis != nil)
	if strings.TrimSpace(freeText) == "" {
		return nil, fmt.Errorf("availability text is empty: %w", models.ErrUnparsableAvailability)
	}

	prefs, err := p.collectPreferences(ctx, freeText)
	if err != nil {
		return nil, err
	}

	basedOnWeakPoints := false
	if analysis != nil && len(analysis.WeakPoints) > 0 {
		prefs.Subjects = prioritizeWeakTopics(prefs.Subjects, analysis.WeakPoints)
		basedOnWeakPoints = true
	}

	blocks, err := p.buildPomodoroPlan(prefs)
	if err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		Preferences:       prefs,
		Blocks:            blocks,
		BasedOnWeakPoints: basedOnWeakPoints,
		CreatedAt:         time.Now(),
	}
	slog.Info("PomodoroPlanner.GenerateSchedule succeeded",
		"blocks", len(blocks), "subjects", len(prefs.Subjects), "based_on_weak_points", basedOnWeakPoints)
	return schedule, nil
}

// collectPreferences asks the model for structured preferences and falls back
// to the heuristic parser when the model fails or returns invalid JSON.
func (p *PomodoroPlanner) collectPreferences(ctx context.Context, freeText string) (models.SchedulePreferences, error) {
	if p.gen != nil {
		raw, err := p.gen.GeneratePrompt(ctx, preferencesSystemPrompt, fmt.Sprintf(preferencesPrompt, freeText))
		if err == nil {
			prefs, perr := parsePreferences(raw)
			if perr == nil {
				return prefs, nil
			}
			slog.Warn("PomodoroPlanner: model preferences unusable, using heuristic parser", "error", perr)
		} else {
			slog.Warn("PomodoroPlanner: model unavailable, using heuristic parser", "error", err)
		}
	}
	return heuristicPreferences(freeText)
}

// parsePreferences validates the model's JSON response.
func parsePreferences(raw string) (models.SchedulePreferences, error) {
	var prefs models.SchedulePreferences
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &prefs); err != nil {
		return prefs, fmt.Errorf("scheduling model must return valid JSON: %w", err)
	}
	if prefs.StartTime == "" || prefs.EndTime == "" {
		return prefs, fmt.Errorf("scheduling model response missing start_time or end_time")
	}
	if len(prefs.Subjects) == 0 {
		return prefs, fmt.Errorf("scheduling model must return a non-empty subjects list")
	}
	for _, s := range prefs.Subjects {
		if strings.TrimSpace(s) == "" {
			return prefs, fmt.Errorf("each subject must be a non-empty string")
		}
	}
	return prefs, nil
}

var (
	rangePattern  = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:-|to)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	singlePattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

	subjectMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)focus on\s+([^.]+)`),
		regexp.MustCompile(`(?i)study\s+([^.]+)`),
		regexp.MustCompile(`(?i)studying\s+([^.]+)`),
		regexp.MustCompile(`(?i)work on\s+([^.]+)`),
		regexp.MustCompile(`(?i)review\s+([^.]+)`),
		regexp.MustCompile(`(?i)subjects?\s*:\s*([^.]+)`),
		regexp.MustCompile(`(?i)topics?\s*:\s*([^.]+)`),
	}

	subjectSplitter = regexp.MustCompile(`(?i),|/|\band\b|\bthen\b|&`)
)

// heuristicPreferences extracts a time window and subjects with regular
// expressions. Text with no recognizable time reference is unparsable.
func heuristicPreferences(text string) (models.SchedulePreferences, error) {
	start, end, ok := extractTimeRange(text)
	if !ok {
		return models.SchedulePreferences{}, fmt.Errorf("no time window found in %q: %w", text, models.ErrUnparsableAvailability)
	}

	subjects := extractSubjects(text)
	if len(subjects) == 0 {
		subjects = []string{"General Study"}
	}

	if timeToMinutes(end) <= timeToMinutes(start) {
		end = addMinutes(start, 60)
	}

	return models.SchedulePreferences{
		StartTime: start,
		EndTime:   end,
		Subjects:  subjects,
		Notes:     "Generated via heuristic parser (LLM unavailable).",
	}, nil
}

// extractTimeRange finds a start/end pair in the text. A lone time gets a
// one-hour window.
func extractTimeRange(text string) (start, end string, ok bool) {
	if m := rangePattern.FindStringSubmatch(text); m != nil {
		start = formatClock(m[1], m[2], m[3], m[6])
		end = formatClock(m[4], m[5], m[6], m[3])
		return start, end, true
	}
	times := singlePattern.FindAllStringSubmatch(text, -1)
	if len(times) >= 2 {
		return formatClock(times[0][1], times[0][2], times[0][3], ""),
			formatClock(times[1][1], times[1][2], times[1][3], ""), true
	}
	if len(times) == 1 {
		start = formatClock(times[0][1], times[0][2], times[0][3], "")
		return start, addMinutes(start, 60), true
	}
	return "", "", false
}

// formatClock renders an hour/minute/am-pm capture as HH:MM 24-hour. A bare
// hour borrows the am/pm marker from the other end of the range.
func formatClock(hour, minute, ampm, fallbackAmpm string) string {
	h, _ := strconv.Atoi(hour)
	m := 0
	if minute != "" {
		m, _ = strconv.Atoi(minute)
	}
	marker := strings.ToLower(ampm)
	if marker == "" {
		marker = strings.ToLower(fallbackAmpm)
	}
	if marker != "" {
		h = h % 12
		if marker == "pm" {
			h += 12
		}
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// extractSubjects pulls subject lists out of marker phrases like "study X and Y".
func extractSubjects(text string) []string {
	var chunks []string
	for _, marker := range subjectMarkers {
		if m := marker.FindStringSubmatch(text); m != nil {
			chunks = append(chunks, m[1])
		}
	}

	var subjects []string
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		for _, part := range subjectSplitter.Split(chunk, -1) {
			subject := strings.Trim(part, " .")
			if subject == "" {
				continue
			}
			key := strings.ToLower(subject)
			if !seen[key] {
				seen[key] = true
				subjects = append(subjects, subject)
			}
		}
	}
	return subjects
}

// buildPomodoroPlan fills the window with alternating study and break blocks.
// A trailing break never ends the plan.
func (p *PomodoroPlanner) buildPomodoroPlan(prefs models.SchedulePreferences) ([]models.StudyBlock, error) {
	start, err := parseClock(prefs.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(prefs.EndTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("end time %s not after start time %s: %w", prefs.EndTime, prefs.StartTime, models.ErrWindowTooSmall)
	}

	var blocks []models.StudyBlock
	subjectIndex := 0
	current := start
	for current+p.pomodoroMinutes <= end {
		blockEnd := current + p.pomodoroMinutes
		subject := prefs.Subjects[subjectIndex%len(prefs.Subjects)]
		blocks = append(blocks, models.StudyBlock{
			Type:    models.BlockStudy,
			Subject: subject,
			Start:   minutesToTime(current),
			End:     minutesToTime(blockEnd),
		})
		current = blockEnd

		if current+p.breakMinutes > end {
			break
		}
		breakEnd := current + p.breakMinutes
		blocks = append(blocks, models.StudyBlock{
			Type:  models.BlockBreak,
			Start: minutesToTime(current),
			End:   minutesToTime(breakEnd),
		})
		current = breakEnd
		subjectIndex++
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("no Pomodoro blocks fit between %s and %s: %w", prefs.StartTime, prefs.EndTime, models.ErrWindowTooSmall)
	}
	return blocks, nil
}

// prioritizeWeakTopics orders subjects severe first, then moderate, then
// mild, then whatever the user asked for that analysis did not flag.
func prioritizeWeakTopics(subjects []string, weakPoints []models.WeakPoint) []string {
	var prioritized []string
	seen := make(map[string]bool)
	add := func(topic string) {
		key := strings.ToLower(topic)
		if topic != "" && !seen[key] {
			seen[key] = true
			prioritized = append(prioritized, topic)
		}
	}

	for _, tier := range []models.Severity{models.SeveritySevere, models.SeverityModerate, models.SeverityMild} {
		for _, wp := range weakPoints {
			if wp.Severity == tier {
				add(wp.Topic)
			}
		}
	}
	for _, subject := range subjects {
		add(subject)
	}

	if len(prioritized) == 0 {
		return subjects
	}
	return prioritized
}

// Clock helpers work in minutes since midnight.

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("times must be in HH:MM 24-hour format, got %q: %w", value, models.ErrUnparsableAvailability)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minutesToTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func timeToMinutes(value string) int {
	m, err := parseClock(value)
	if err != nil {
		return 0
	}
	return m
}

func addMinutes(value string, minutes int) string {
	return minutesToTime(timeToMinutes(value) + minutes)
}
