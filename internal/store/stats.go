package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RequestStats aggregates the media request trail, either for one chat or
// across all chats.
type RequestStats struct {
	UsageCount     int64
	FirstUsage     *time.Time
	LastUsage      *time.Time
	UsersCount     int64
	ErrorCount     int64
	ForwardedCount int64

	ModeTranscribe int64
	ModeTranslate  int64

	MediaVoice     int64
	MediaAudio     int64
	MediaVideo     int64
	MediaVideoNote int64

	AvgDuration       float64
	AvgFileSize       float64
	AvgResponseLength float64
	AvgTotalMillis    float64
}

const requestStatsColumns = `
	COUNT(*),
	MIN(created_at),
	MAX(created_at),
	COUNT(DISTINCT user_id),
	COUNT(*) FILTER (WHERE error <> ''),
	COUNT(*) FILTER (WHERE is_forward = 1),
	COUNT(*) FILTER (WHERE mode = 'transcribe'),
	COUNT(*) FILTER (WHERE mode = 'translate'),
	COUNT(*) FILTER (WHERE media_type = 'voice'),
	COUNT(*) FILTER (WHERE media_type = 'audio'),
	COUNT(*) FILTER (WHERE media_type = 'video'),
	COUNT(*) FILTER (WHERE media_type = 'video_note'),
	COALESCE(AVG(duration), 0),
	COALESCE(AVG(file_size), 0),
	COALESCE(AVG(LENGTH(response)), 0),
	COALESCE(AVG(total_ms), 0)`

func scanRequestStats(row *sql.Row) (*RequestStats, error) {
	var (
		st          RequestStats
		first, last sql.NullString
	)
	err := row.Scan(
		&st.UsageCount, &first, &last, &st.UsersCount, &st.ErrorCount,
		&st.ForwardedCount, &st.ModeTranscribe, &st.ModeTranslate,
		&st.MediaVoice, &st.MediaAudio, &st.MediaVideo, &st.MediaVideoNote,
		&st.AvgDuration, &st.AvgFileSize, &st.AvgResponseLength, &st.AvgTotalMillis,
	)
	if err != nil {
		return nil, err
	}
	if first.Valid {
		t := parseTime(first.String)
		st.FirstUsage = &t
	}
	if last.Valid {
		t := parseTime(last.String)
		st.LastUsage = &t
	}
	return &st, nil
}

// ChatStats aggregates the request trail for one chat.
func (s *Store) ChatStats(ctx context.Context, chatID int64) (*RequestStats, error) {
	st, err := scanRequestStats(s.db.QueryRowContext(ctx,
		"SELECT"+requestStatsColumns+" FROM media_requests WHERE chat_id = ?", chatID))
	if err != nil {
		return nil, fmt.Errorf("store: chat stats %d: %w", chatID, err)
	}
	return st, nil
}

// GlobalStats aggregates the full request trail together with chat counts.
type GlobalStats struct {
	Requests RequestStats

	ChatsWithRequests int64
	TotalChats        int64
	BannedChats       int64
	LoggingEnabled    int64
	PrivateChats      int64
	Supergroups       int64
}

// Stats returns the global aggregates used by /stats and the daily digest.
func (s *Store) Stats(ctx context.Context) (*GlobalStats, error) {
	st, err := scanRequestStats(s.db.QueryRowContext(ctx,
		"SELECT"+requestStatsColumns+" FROM media_requests"))
	if err != nil {
		return nil, fmt.Errorf("store: global stats: %w", err)
	}

	g := GlobalStats{Requests: *st}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT chat_id) FROM media_requests),
			COUNT(*),
			COUNT(*) FILTER (WHERE banned_at IS NOT NULL),
			COUNT(*) FILTER (WHERE logging_enabled = 1),
			COUNT(*) FILTER (WHERE chat_id > 0),
			COUNT(*) FILTER (WHERE chat_id <= -1000000000000)
		FROM chats`).Scan(
		&g.ChatsWithRequests, &g.TotalChats, &g.BannedChats,
		&g.LoggingEnabled, &g.PrivateChats, &g.Supergroups)
	if err != nil {
		return nil, fmt.Errorf("store: chat aggregates: %w", err)
	}
	return &g, nil
}

// ChatSummary is one entry of the chat list shown to operators.
type ChatSummary struct {
	ChatID         int64
	Banned         bool
	LoggingEnabled bool
	CreatedAt      time.Time
	LastUsage      *time.Time
	UsageCount     int64
}

// ListChats returns all known chats. When byUsageCount is true the list is
// ordered by total requests, otherwise by most recent usage.
func (s *Store) ListChats(ctx context.Context, byUsageCount bool) ([]ChatSummary, error) {
	order := "last_usage DESC"
	if byUsageCount {
		order = "usage_count DESC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.chat_id,
			c.banned_at IS NOT NULL,
			c.logging_enabled,
			c.created_at,
			MAX(r.created_at) AS last_usage,
			COUNT(r.id) AS usage_count
		FROM chats c
		LEFT JOIN media_requests r ON c.chat_id = r.chat_id
		GROUP BY c.chat_id, c.banned_at, c.logging_enabled, c.created_at
		ORDER BY `+order+`, c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var (
			c         ChatSummary
			banned    int
			logging   int
			createdAt string
			lastUsage sql.NullString
		)
		if err := rows.Scan(&c.ChatID, &banned, &logging, &createdAt, &lastUsage, &c.UsageCount); err != nil {
			return nil, fmt.Errorf("store: scan chat summary: %w", err)
		}
		c.Banned = banned != 0
		c.LoggingEnabled = logging != 0
		c.CreatedAt = parseTime(createdAt)
		if lastUsage.Valid {
			t := parseTime(lastUsage.String)
			c.LastUsage = &t
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	return out, nil
}
