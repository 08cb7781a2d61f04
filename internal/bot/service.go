// Package bot implements the media request pipeline, result delivery,
// operator audit relay, and command handling on top of the Telegram client.
package bot

import (
	"context"
	"time"

	"github.com/voclab/voxgram/internal/ratelimit"
	"github.com/voclab/voxgram/internal/store"
	"github.com/voclab/voxgram/internal/telegram"
	"github.com/voclab/voxgram/pkg/media"
)

// API is the slice of the Telegram client the bot uses. Narrowed so tests
// can run against a recording fake.
type API interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, req telegram.ForwardMessageRequest) (*telegram.Message, error)
	CopyMessages(ctx context.Context, req telegram.CopyMessagesRequest) ([]telegram.MessageIDResult, error)
	SendMedia(ctx context.Context, method string, req telegram.SendMediaRequest) (*telegram.Message, error)
	SendChatAction(ctx context.Context, chatID int64, action string) error
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
	UploadDocument(ctx context.Context, chatID int64, threadID int, replyTo int, filename string, data []byte) (*telegram.Message, error)
}

// Storage is the durable layer backing chat configuration, moderation, and
// the audit trail.
type Storage interface {
	GetOrCreateChat(ctx context.Context, chatID int64) (*store.ChatConfig, error)
	GetChat(ctx context.Context, chatID int64) (*store.ChatConfig, error)
	SetLanguage(ctx context.Context, chatID int64, language string) error
	SetFormatStyle(ctx context.Context, chatID int64, style media.FormatStyle) error
	SetDefaultMode(ctx context.Context, chatID int64, mode media.Mode) error
	SetLogging(ctx context.Context, chatID int64, enabled bool) error
	Ban(ctx context.Context, chatID int64) (time.Time, bool, error)
	Unban(ctx context.Context, chatID int64) (bool, error)
	InsertRequest(ctx context.Context, r *store.RequestRecord) error
	ChatStats(ctx context.Context, chatID int64) (*store.RequestStats, error)
	Stats(ctx context.Context) (*store.GlobalStats, error)
	ListChats(ctx context.Context, byUsageCount bool) ([]store.ChatSummary, error)
}

// Limiter decides admission and keeps the cached chat-state flags.
type Limiter interface {
	Admit(ctx context.Context, chatID, userID int64) ratelimit.Decision
	MarkChat(ctx context.Context, chatID int64, state media.ChatState) error
	ClearChat(ctx context.Context, chatID int64) error
}

// Transcriber turns downloaded media into text.
type Transcriber interface {
	Transcribe(ctx context.Context, file media.File, mode media.Mode, language string) (string, error)
}
