// Package store provides storage backends for StudyPal.
//
// This file implements an SQLite-backed store for conversation state,
// profiles, quotes, and snippets.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studypal/studypal/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists StudyPal data in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveConversationState stores or updates the state for its session id.
func (s *SQLiteStore) SaveConversationState(state models.ConversationState) error {
	if state.SessionID == "" {
		return models.ErrEmptySessionID
	}
	payload, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState marshal failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO conversation_states (session_id, user_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		state.SessionID, state.UserID, string(payload), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveConversationState succeeded", "sessionID", state.SessionID)
	return nil
}

// GetConversationState retrieves state by session id, nil when absent.
func (s *SQLiteStore) GetConversationState(sessionID string) (*models.ConversationState, error) {
	var payload string
	err := s.db.QueryRow(`SELECT state FROM conversation_states WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		slog.Error("SQLiteStore GetConversationState unmarshal failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// DeleteConversationState removes the state row for a session id.
func (s *SQLiteStore) DeleteConversationState(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversationState failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete conversation state for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore DeleteConversationState succeeded", "sessionID", sessionID)
	return nil
}

// SaveUserProfile stores or updates a user profile.
func (s *SQLiteStore) SaveUserProfile(profile models.UserProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal user profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO user_profiles (user_id, profile, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		profile.UserID, string(payload), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUserProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	return nil
}

// GetUserProfile retrieves a profile, or models.ErrProfileNotFound.
func (s *SQLiteStore) GetUserProfile(userID string) (*models.UserProfile, error) {
	var payload string
	err := s.db.QueryRow(`SELECT profile FROM user_profiles WHERE user_id = ?`, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserProfile query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user profile: %w", err)
	}
	var profile models.UserProfile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user profile: %w", err)
	}
	return &profile, nil
}

// AddQuote stores a persona quote.
func (s *SQLiteStore) AddQuote(q models.Quote) error {
	_, err := s.db.Exec(`INSERT INTO quotes (persona, author, text) VALUES (?, ?, ?)`, q.Persona, q.Author, q.Text)
	if err != nil {
		slog.Error("SQLiteStore AddQuote failed", "error", err, "persona", q.Persona)
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// GetQuotes returns quotes for a persona (all quotes when persona is empty).
func (s *SQLiteStore) GetQuotes(persona string) ([]models.Quote, error) {
	query := `SELECT persona, author, text FROM quotes`
	args := []interface{}{}
	if persona != "" {
		query += ` WHERE persona = ? COLLATE NOCASE`
		args = append(args, persona)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetQuotes query failed", "error", err, "persona", persona)
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.Quote
	for rows.Next() {
		var q models.Quote
		if err := rows.Scan(&q.Persona, &q.Author, &q.Text); err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quote rows: %w", err)
	}
	slog.Debug("SQLiteStore GetQuotes succeeded", "persona", persona, "count", len(quotes))
	return quotes, nil
}

// AddSnippet stores a study-material snippet.
func (s *SQLiteStore) AddSnippet(sn models.Snippet) error {
	_, err := s.db.Exec(`INSERT INTO snippets (source, content) VALUES (?, ?)`, sn.Source, sn.Content)
	if err != nil {
		slog.Error("SQLiteStore AddSnippet failed", "error", err, "source", sn.Source)
		return fmt.Errorf("failed to insert snippet: %w", err)
	}
	return nil
}

// SearchSnippets returns up to limit snippets whose content contains term.
func (s *SQLiteStore) SearchSnippets(term string, limit int) ([]models.Snippet, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(`
		SELECT source, content FROM snippets
		WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		LIMIT ?`, term, limit)
	if err != nil {
		slog.Error("SQLiteStore SearchSnippets query failed", "error", err, "term", term)
		return nil, fmt.Errorf("failed to query snippets: %w", err)
	}
	defer rows.Close()

	var snippets []models.Snippet
	for rows.Next() {
		var sn models.Snippet
		if err := rows.Scan(&sn.Source, &sn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan snippet row: %w", err)
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snippet rows: %w", err)
	}
	return snippets, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
