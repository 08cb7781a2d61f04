package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/voclab/voxgram/internal/config"
	"github.com/voclab/voxgram/internal/telegram"
	"github.com/voclab/voxgram/pkg/media"
)

// Auditor relays notes and media to the operator channel. Every method is
// a no-op when no operator chat is configured or the event falls under a
// skip rule; relay failures are reported to the caller but must never
// block the audit row.
type Auditor struct {
	api      API
	logger   *slog.Logger
	chatID   int64
	threadID int

	skipChats map[int64]struct{}
	skipUsers map[int64]struct{}
}

// NewAuditor creates an Auditor from the operator configuration.
func NewAuditor(api API, logger *slog.Logger, cfg config.OperatorConfig) *Auditor {
	a := &Auditor{
		api:       api,
		logger:    logger,
		chatID:    cfg.ChatID,
		threadID:  cfg.ThreadID,
		skipChats: make(map[int64]struct{}, len(cfg.SkipLogChats)),
		skipUsers: make(map[int64]struct{}, len(cfg.SkipLogUsers)),
	}
	for _, id := range cfg.SkipLogChats {
		a.skipChats[id] = struct{}{}
	}
	for _, id := range cfg.SkipLogUsers {
		a.skipUsers[id] = struct{}{}
	}
	return a
}

// skip reports whether events from this chat/user stay off the operator
// channel. Operator-channel traffic itself is always skipped to avoid
// relay loops.
func (a *Auditor) skip(ev *media.Event) bool {
	if a.chatID == 0 || ev.ChatID == a.chatID {
		return true
	}
	if _, ok := a.skipChats[ev.ChatID]; ok {
		return true
	}
	_, ok := a.skipUsers[ev.Requester.ID]
	return ok
}

// Note sends a text note about ev to the operator channel. Attribution
// names the requester, so reply commands point at whoever issued them.
func (a *Auditor) Note(ctx context.Context, ev *media.Event, text string, isError bool) error {
	if a.skip(ev) {
		return nil
	}

	icon := "ℹ️"
	if isError {
		icon = "🚨"
	}
	name := html.EscapeString(ev.Requester.FullName())
	note := fmt.Sprintf("%s <code>%d</code> | <code>%d</code> <code>%s</code>", icon, ev.ChatID, ev.Requester.ID, name)
	if ev.Requester.Username != "" {
		note += " @" + html.EscapeString(ev.Requester.Username)
	}
	note += ":\n\n" + html.EscapeString(text)

	_, err := a.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:          a.chatID,
		Text:            note,
		ParseMode:       "HTML",
		MessageThreadID: a.threadID,
	})
	if err != nil {
		return fmt.Errorf("bot: operator note: %w", err)
	}
	return nil
}

// RelayMedia copies the event's media to the operator channel. It tries,
// in order: forwarding the carrying message, re-sending by file id, and
// uploading the already-downloaded buffer. The first success wins; the
// message id of the relayed copy is returned for the audit row.
func (a *Auditor) RelayMedia(ctx context.Context, ev *media.Event, downloaded *media.File) (int, error) {
	if a.skip(ev) {
		return 0, nil
	}

	msg, err := a.api.ForwardMessage(ctx, telegram.ForwardMessageRequest{
		ChatID:          a.chatID,
		FromChatID:      ev.ChatID,
		MessageID:       ev.SourceMessageID(),
		MessageThreadID: a.threadID,
	})
	if err == nil {
		return msg.MessageID, nil
	}
	a.logger.Warn("media forward failed, falling back to file id", "error", err, "chat_id", ev.ChatID)

	msg, err = a.sendByFileID(ctx, ev)
	if err == nil {
		return msg.MessageID, nil
	}
	a.logger.Warn("file id relay failed", "error", err, "chat_id", ev.ChatID)

	if downloaded == nil {
		return 0, fmt.Errorf("bot: relay media: %w", err)
	}

	msg, err = a.api.UploadDocument(ctx, a.chatID, a.threadID, 0, downloaded.Name, downloaded.Data)
	if err != nil {
		return 0, fmt.Errorf("bot: relay media upload: %w", err)
	}
	return msg.MessageID, nil
}

func (a *Auditor) sendByFileID(ctx context.Context, ev *media.Event) (*telegram.Message, error) {
	req := telegram.SendMediaRequest{
		ChatID:          a.chatID,
		MessageThreadID: a.threadID,
	}

	var method string
	switch ev.Payload.Kind {
	case media.KindVoice:
		method, req.Voice = "sendVoice", ev.Payload.FileID
	case media.KindAudio:
		method, req.Audio = "sendAudio", ev.Payload.FileID
	case media.KindVideo:
		method, req.Video = "sendVideo", ev.Payload.FileID
	case media.KindVideoNote:
		method, req.VideoNote = "sendVideoNote", ev.Payload.FileID
	case media.KindDocument:
		method, req.Document = "sendDocument", ev.Payload.FileID
	case media.KindPhoto:
		method, req.Photo = "sendPhoto", ev.Payload.FileID
	default:
		return nil, fmt.Errorf("bot: no send method for media kind %q", ev.Payload.Kind)
	}

	return a.api.SendMedia(ctx, method, req)
}

// RelayTranscription copies the source message and the delivered
// transcription messages to the operator channel. It returns the id of the
// first relayed copy.
func (a *Auditor) RelayTranscription(ctx context.Context, ev *media.Event, messageIDs []int) (int, error) {
	if a.skip(ev) || len(messageIDs) == 0 {
		return 0, nil
	}

	if err := a.Note(ctx, ev, "Transcribed file", false); err != nil {
		return 0, err
	}

	results, err := a.api.CopyMessages(ctx, telegram.CopyMessagesRequest{
		ChatID:          a.chatID,
		FromChatID:      ev.ChatID,
		MessageIDs:      messageIDs,
		MessageThreadID: a.threadID,
	})
	if err != nil {
		return 0, fmt.Errorf("bot: relay transcription: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].MessageID, nil
}
