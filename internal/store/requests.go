package store

import (
	"context"
	"fmt"
	"time"

	"github.com/voclab/voxgram/pkg/media"
)

// RequestRecord is one audit row in the media request trail. Exactly one
// record is written per inbound media item, whether it was transcribed,
// denied, or failed.
type RequestRecord struct {
	ChatID          int64
	UserID          int64
	MessageID       int
	ForwardChatID   int64
	IsForward       bool
	Mode            media.Mode
	MediaType       media.Kind
	LoggedMessageID int
	FileID          string
	FileType        string
	FileSize        int64
	Duration        int
	Response        string
	Error           string
	Language        string
	DownloadTime    time.Duration
	APITime         time.Duration
	TotalTime       time.Duration
}

// InsertRequest appends one audit record. The trail is append-only.
func (s *Store) InsertRequest(ctx context.Context, r *RequestRecord) error {
	isForward := 0
	if r.IsForward {
		isForward = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_requests (
			chat_id, user_id, message_id, forward_chat_id, is_forward,
			mode, media_type, logged_message_id, file_id, file_type,
			file_size, duration, response, error, language,
			download_ms, api_ms, total_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ChatID, r.UserID, r.MessageID, r.ForwardChatID, isForward,
		string(r.Mode), string(r.MediaType), r.LoggedMessageID, r.FileID, r.FileType,
		r.FileSize, r.Duration, r.Response, r.Error, r.Language,
		r.DownloadTime.Milliseconds(), r.APITime.Milliseconds(), r.TotalTime.Milliseconds())
	if err != nil {
		return fmt.Errorf("store: insert media request: %w", err)
	}
	return nil
}
