// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrAmbiguousReference is returned when an ID prefix matches several conversations.
var ErrAmbiguousReference = &ConversationError{Message: "reference matches more than one conversation"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// Store persists conversations in SQLite. Safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.SugaredLogger
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one long-lived connection also keeps
	// per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if path != ":memory:" {
		_ = os.Chmod(path, 0600)
	}
	log.Debugw("history database opened", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata(key, value) VALUES('schema_version', ?)
		 ON CONFLICT(key) DO NOTHING`, strconv.Itoa(schemaVersion))
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Save inserts or replaces conv and all of its messages in one transaction.
// Streaming messages are stored with the text received so far.
func (s *Store) Save(ctx context.Context, conv *model.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	if conv.ID == "" {
		return errors.New("conversation has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations(id, title, model, temperature, system_prompt, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			temperature = excluded.temperature,
			system_prompt = excluded.system_prompt,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Model, conv.Temperature, conv.SystemPrompt,
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("replace messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages(id, conversation_id, seq, role, content, created_at,
			interrupted, local, ttft_ms, duration_ms, fragments)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		_, err := stmt.ExecContext(ctx,
			msg.ID, conv.ID, i, string(msg.Role), msg.GetDisplayContent(), msg.Timestamp.UnixNano(),
			boolToInt(msg.Interrupted || msg.IsStreaming), boolToInt(msg.Local),
			msg.TTFT.Milliseconds(), msg.TotalDuration.Milliseconds(), msg.FragmentCount)
		if err != nil {
			return fmt.Errorf("save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.log.Debugw("conversation saved", "id", conv.ID, "messages", len(conv.Messages))
	return nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

// Clear removes every conversation.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	return tx.Commit()
}

// Prune keeps the max most recently updated conversations and deletes the
// rest, returning how many were removed. max <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM conversations ORDER BY updated_at DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id IN (`+stale+`)`, max); err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id IN (`+stale+`)`, max)
	if err != nil {
		return 0, fmt.Errorf("prune conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infow("pruned old conversations", "removed", n, "kept", max)
	}
	return int(n), nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Load returns the full conversation with the given ID.
func (s *Store) Load(ctx context.Context, id string) (*model.Conversation, error) {
	conv := &model.Conversation{}
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, model, temperature, system_prompt, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &conv.Model, &conv.Temperature, &conv.SystemPrompt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at, interrupted, local, ttft_ms, duration_ms, fragments
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = make([]*model.Message, 0)
	for rows.Next() {
		var (
			msg                      model.Message
			role                     string
			ts, ttftMs, durMs        int64
			interrupted, local, frag int
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts, &interrupted, &local, &ttftMs, &durMs, &frag); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = model.ParseRole(role)
		msg.Timestamp = time.Unix(0, ts)
		msg.Interrupted = interrupted != 0
		msg.Local = local != 0
		msg.TTFT = time.Duration(ttftMs) * time.Millisecond
		msg.TotalDuration = time.Duration(durMs) * time.Millisecond
		msg.FragmentCount = frag
		if gen := msg.TotalDuration - msg.TTFT; gen > 0 && frag > 0 {
			msg.FragmentsPerSec = float64(frag) / gen.Seconds()
		}
		conv.Messages = append(conv.Messages, &msg)
	}
	return conv, rows.Err()
}

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

const metaQuery = `
	SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		COALESCE((SELECT m.content FROM messages m
			WHERE m.conversation_id = c.id AND m.role = 'user'
			ORDER BY m.seq LIMIT 1), '')
	FROM conversations c`

// List returns conversation metadata, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]ConversationMeta, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, metaQuery+` ORDER BY c.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return scanMetas(rows)
}

// Search returns conversations whose title or any message contains query
// (ASCII case-insensitive), newest first. An empty query lists everything.
func (s *Store) Search(ctx context.Context, query string) ([]ConversationMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, 0)
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, metaQuery+`
		WHERE c.title LIKE ? ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.content LIKE ? ESCAPE '\')
		ORDER BY c.updated_at DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return scanMetas(rows)
}

// Count returns the number of stored conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// Resolve turns a user reference into a conversation ID. ref may be a
// 1-based index into List order or a unique ID prefix.
func (s *Store) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrConversationNotFound
	}
	if n, err := strconv.Atoi(ref); err == nil && n > 0 {
		metas, err := s.List(ctx, n)
		if err != nil {
			return "", err
		}
		if n <= len(metas) {
			return metas[n-1].ID, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeLike(ref)+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", ErrConversationNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguousReference
	}
}

func scanMetas(rows *sql.Rows) ([]ConversationMeta, error) {
	defer rows.Close()
	metas := make([]ConversationMeta, 0)
	for rows.Next() {
		var (
			m                ConversationMeta
			created, updated int64
			firstUser        string
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Model, &created, &updated, &m.MessageCount, &firstUser); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		m.UpdatedAt = time.Unix(0, updated)
		m.Preview = generateSummary(firstUser)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// generateSummary is the first line of text, truncated to 50 characters.
func generateSummary(text string) string {
	return util.TruncateRunes(util.SingleLine(text), 50)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
