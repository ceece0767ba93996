// Package calendar syncs generated study schedules to an external calendar.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/studypal/studypal/internal/models"
)

// DefaultCalendarID is the calendar events are written to.
const DefaultCalendarID = "primary"

// DefaultRequestTimeout bounds a single event-creation request.
const DefaultRequestTimeout = 10 * time.Second

// Event is the payload sent to the calendar service for one study block.
type Event struct {
	CalendarID  string `json:"calendarId"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Start       string `json:"start"` // ISO 8601
	End         string `json:"end"`   // ISO 8601
	TimeZone    string `json:"timeZone,omitempty"`
}

// Connector creates calendar events for study blocks. Implementations must
// tolerate per-event failures; SyncSchedule reports only total failure.
type Connector interface {
	CreateEvent(ctx context.Context, event Event) error
}

// Opts holds configuration options for the HTTP connector.
type Opts struct {
	BaseURL  string
	TimeZone string
	Client   *http.Client
}

// Option defines a configuration option for connector construction.
type Option func(*Opts)

// WithBaseURL sets the calendar service endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithTimeZone sets the time zone attached to created events.
func WithTimeZone(tz string) Option {
	return func(o *Opts) {
		o.TimeZone = tz
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.Client = c
	}
}

// HTTPConnector posts events to a calendar bridge service.
type HTTPConnector struct {
	baseURL  string
	timeZone string
	client   *http.Client
}

// NewHTTPConnector creates a connector for the configured endpoint.
func NewHTTPConnector(opts ...Option) (*HTTPConnector, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Calendar NewHTTPConnector invoked", "base_url_set", cfg.BaseURL != "", "time_zone", cfg.TimeZone)

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("calendar base URL not set")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &HTTPConnector{baseURL: cfg.BaseURL, timeZone: cfg.TimeZone, client: client}, nil
}

// CreateEvent posts a single event to the calendar service.
func (c *HTTPConnector) CreateEvent(ctx context.Context, event Event) error {
	if event.CalendarID == "" {
		event.CalendarID = DefaultCalendarID
	}
	if event.TimeZone == "" {
		event.TimeZone = c.timeZone
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal calendar event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build calendar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Calendar CreateEvent request failed", "error", err, "summary", event.Summary)
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("Calendar CreateEvent rejected", "status", resp.StatusCode, "summary", event.Summary)
		return fmt.Errorf("calendar service returned status %d: %s", resp.StatusCode, string(payload))
	}
	slog.Debug("Calendar CreateEvent succeeded", "summary", event.Summary)
	return nil
}

// NoopConnector discards events. Used when no calendar integration is
// configured so schedules still mark themselves synced.
type NoopConnector struct{}

// CreateEvent does nothing.
func (NoopConnector) CreateEvent(ctx context.Context, event Event) error {
	slog.Debug("Calendar NoopConnector discarding event", "summary", event.Summary)
	return nil
}

// SyncSchedule creates one event per study block. Breaks are skipped and a
// failed block does not abort the remaining ones; an error is returned only
// when every event fails.
func SyncSchedule(ctx context.Context, connector Connector, schedule *models.Schedule) error {
	if connector == nil || schedule == nil {
		return nil
	}
	study := schedule.StudyBlocks()
	slog.Debug("Calendar SyncSchedule invoked", "study_blocks", len(study))

	failures := 0
	for _, block := range study {
		event, err := blockEvent(block)
		if err != nil {
			slog.Warn("Calendar SyncSchedule skipping malformed block", "error", err, "subject", block.Subject)
			failures++
			continue
		}
		if err := connector.CreateEvent(ctx, event); err != nil {
			slog.Warn("Calendar SyncSchedule event failed", "error", err, "subject", block.Subject)
			failures++
		}
	}
	if len(study) > 0 && failures == len(study) {
		return fmt.Errorf("failed to sync any of %d study blocks", len(study))
	}
	slog.Info("Calendar SyncSchedule completed", "synced", len(study)-failures, "failed", failures)
	return nil
}

// blockEvent converts a study block's HH:MM times into an ISO 8601 event on
// today's date.
func blockEvent(block models.StudyBlock) (Event, error) {
	start, err := clockToday(block.Start)
	if err != nil {
		return Event{}, err
	}
	end, err := clockToday(block.End)
	if err != nil {
		return Event{}, err
	}
	subject := block.Subject
	if subject == "" {
		subject = "Study"
	}
	return Event{
		CalendarID:  DefaultCalendarID,
		Summary:     fmt.Sprintf("Study: %s", subject),
		Description: fmt.Sprintf("Pomodoro study session for %s", subject),
		Start:       start.Format(time.RFC3339),
		End:         end.Format(time.RFC3339),
	}, nil
}

func clockToday(value string) (time.Time, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid block time %q: %w", value, err)
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}
