// Package engine implements the turn orchestration core: intent routing,
// the specialized conversation handlers, and the per-turn runner.
package engine

import (
	"regexp"
	"strings"
)

// Routing and sub-dialogue vocabularies. Intent keywords match as
// substrings of the lowercased message; reply classification (affirmative,
// negative, day references, exit triggers) matches whole tokens only, so
// "notebook" never reads as "no".

var scheduleKeywords = []string{"schedule", "plan", "calendar", "studying"}

var analyzeKeywords = []string{"analyze", "session", "weak points", "finish", "review"}

var motivateKeywords = []string{"motivate", "encourage", "inspiration"}

// timeRefPattern matches clock-like patterns ("14-15", "18:00", "2pm", "from 2 to 5").
var timeRefPattern = regexp.MustCompile(`(?i)\d{1,2}[-:]\d{1,2}|\d{1,2}\s*(am|pm|to|from)`)

var affirmativeTokens = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true,
	"ok": true, "okay": true, "definitely": true, "absolutely": true,
	"confirm": true, "confirmed": true, "please": true,
}

var negativeTokens = map[string]bool{
	"no": true, "nope": true, "nah": true, "not": true, "never": true,
	"skip": true, "cancel": true, "dont": true, "don't": true,
}

var dayTokens = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"today": true, "tomorrow": true, "tonight": true, "weekend": true,
	"mon": true, "tue": true, "tues": true, "wed": true, "thu": true,
	"thur": true, "thurs": true, "fri": true, "sat": true, "sun": true,
}

var exitTriggerTokens = map[string]bool{
	"done": true, "finished": true, "finish": true, "stop": true,
	"enough": true, "bye": true, "goodbye": true, "thanks": true,
	"thank": true, "quit": true, "exit": true, "wrap": true,
}

// tokenize lowercases the text and splits it into alphanumeric tokens,
// keeping apostrophes so contractions survive.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
}

func hasToken(text string, vocab map[string]bool) bool {
	for _, tok := range tokenize(text) {
		if vocab[tok] {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// IsAffirmative reports whether the reply reads as a yes. A reply carrying
// both affirmative and negative tokens is ambiguous, not affirmative.
func IsAffirmative(text string) bool {
	return hasToken(text, affirmativeTokens) && !hasToken(text, negativeTokens)
}

// IsNegative reports whether the reply reads as a no.
func IsNegative(text string) bool {
	return hasToken(text, negativeTokens)
}

// HasDayReference reports whether the text names a weekday or relative day.
func HasDayReference(text string) bool {
	return hasToken(text, dayTokens)
}

// HasTimeReference reports whether the text contains a clock-like pattern.
func HasTimeReference(text string) bool {
	return timeRefPattern.MatchString(text)
}

// HasExitTrigger reports whether the text contains completion or farewell
// vocabulary. It is a cheap pre-filter; the exit decider makes the final call.
func HasExitTrigger(text string) bool {
	return hasToken(text, exitTriggerTokens)
}

// MatchesScheduleIntent reports whether the text asks for scheduling.
func MatchesScheduleIntent(text string) bool {
	return containsAny(text, scheduleKeywords) || HasTimeReference(text)
}

// MatchesAnalyzeIntent reports whether the text asks for session analysis.
func MatchesAnalyzeIntent(text string) bool {
	return containsAny(text, analyzeKeywords)
}

// MatchesMotivateIntent reports whether the text asks for encouragement.
func MatchesMotivateIntent(text string) bool {
	return containsAny(text, motivateKeywords)
}
