package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voclab/voxgram/pkg/media"
)

// timeLayout matches the strftime default used by the schema.
const timeLayout = "2006-01-02T15:04:05.000Z"

// ErrChatNotFound is returned by operations that require an existing chat row.
var ErrChatNotFound = errors.New("store: chat not found")

// ChatConfig is the per-chat configuration row. A chat row is created on
// first contact with defaults and only ever updated afterwards.
type ChatConfig struct {
	ChatID         int64
	Language       string // empty means auto-detect
	FormatStyle    media.FormatStyle
	DefaultMode    media.Mode
	BannedAt       *time.Time
	LoggingEnabled bool
	CreatedAt      time.Time
	EditedAt       time.Time
}

// Banned reports whether the chat is currently banned.
func (c *ChatConfig) Banned() bool {
	return c.BannedAt != nil
}

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Fall back for rows written with second precision.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func scanChat(row *sql.Row) (*ChatConfig, error) {
	var (
		c         ChatConfig
		style     string
		mode      string
		banned    sql.NullString
		logging   int
		createdAt string
		editedAt  string
	)
	err := row.Scan(&c.ChatID, &c.Language, &style, &mode, &banned, &logging, &createdAt, &editedAt)
	if err != nil {
		return nil, err
	}
	c.FormatStyle = media.FormatStyle(style)
	c.DefaultMode = media.Mode(mode)
	c.LoggingEnabled = logging != 0
	c.CreatedAt = parseTime(createdAt)
	c.EditedAt = parseTime(editedAt)
	if banned.Valid {
		t := parseTime(banned.String)
		c.BannedAt = &t
	}
	return &c, nil
}

const chatColumns = "chat_id, language, format_style, default_mode, banned_at, logging_enabled, created_at, edited_at"

// GetOrCreateChat returns the configuration for chatID, inserting a row
// with defaults on first contact.
func (s *Store) GetOrCreateChat(ctx context.Context, chatID int64) (*ChatConfig, error) {
	c, err := scanChat(s.db.QueryRowContext(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE chat_id = ?", chatID))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: load chat %d: %w", chatID, err)
	}

	c, err = scanChat(s.db.QueryRowContext(ctx,
		`INSERT INTO chats (chat_id, format_style, default_mode) VALUES (?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET chat_id = chat_id
		 RETURNING `+chatColumns,
		chatID, string(media.StylePlain), string(media.ModeTranscribe)))
	if err != nil {
		return nil, fmt.Errorf("store: create chat %d: %w", chatID, err)
	}
	return c, nil
}

// GetChat returns the configuration for chatID, or ErrChatNotFound.
func (s *Store) GetChat(ctx context.Context, chatID int64) (*ChatConfig, error) {
	c, err := scanChat(s.db.QueryRowContext(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE chat_id = ?", chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load chat %d: %w", chatID, err)
	}
	return c, nil
}

func (s *Store) updateChat(ctx context.Context, chatID int64, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chats SET "+column+" = ?, edited_at = ? WHERE chat_id = ?",
		value, nowString(), chatID)
	if err != nil {
		return fmt.Errorf("store: update chat %d %s: %w", chatID, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update chat %d %s: %w", chatID, column, err)
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// SetLanguage sets the transcription language hint. Empty restores
// auto-detection.
func (s *Store) SetLanguage(ctx context.Context, chatID int64, language string) error {
	return s.updateChat(ctx, chatID, "language", language)
}

// SetFormatStyle sets the delivery presentation style.
func (s *Store) SetFormatStyle(ctx context.Context, chatID int64, style media.FormatStyle) error {
	return s.updateChat(ctx, chatID, "format_style", string(style))
}

// SetDefaultMode sets how unsolicited media is processed.
func (s *Store) SetDefaultMode(ctx context.Context, chatID int64, mode media.Mode) error {
	return s.updateChat(ctx, chatID, "default_mode", string(mode))
}

// SetLogging toggles operator-channel logging for the chat.
func (s *Store) SetLogging(ctx context.Context, chatID int64, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.updateChat(ctx, chatID, "logging_enabled", v)
}

// Ban marks the chat as banned. It returns the ban timestamp and whether
// the chat was already banned before the call.
func (s *Store) Ban(ctx context.Context, chatID int64) (bannedAt time.Time, already bool, err error) {
	c, err := s.GetChat(ctx, chatID)
	if err != nil {
		return time.Time{}, false, err
	}
	if c.BannedAt != nil {
		return *c.BannedAt, true, nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.updateChat(ctx, chatID, "banned_at", now.Format(timeLayout)); err != nil {
		return time.Time{}, false, err
	}
	return now, false, nil
}

// Unban clears the chat's ban. It reports whether the chat was banned.
func (s *Store) Unban(ctx context.Context, chatID int64) (wasBanned bool, err error) {
	c, err := s.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if c.BannedAt == nil {
		return false, nil
	}
	if err := s.updateChat(ctx, chatID, "banned_at", nil); err != nil {
		return false, err
	}
	return true, nil
}

// BannedChat is one entry of the ban list.
type BannedChat struct {
	ChatID   int64
	BannedAt time.Time
}

// BannedChats lists banned chats ordered by ban time.
func (s *Store) BannedChats(ctx context.Context) ([]BannedChat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, banned_at FROM chats WHERE banned_at IS NOT NULL ORDER BY banned_at")
	if err != nil {
		return nil, fmt.Errorf("store: list banned chats: %w", err)
	}
	defer rows.Close()

	var out []BannedChat
	for rows.Next() {
		var (
			b  BannedChat
			ts string
		)
		if err := rows.Scan(&b.ChatID, &ts); err != nil {
			return nil, fmt.Errorf("store: scan banned chat: %w", err)
		}
		b.BannedAt = parseTime(ts)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list banned chats: %w", err)
	}
	return out, nil
}
