package bot

import (
	"context"
	"fmt"
	"unicode/utf16"

	"github.com/voclab/voxgram/internal/telegram"
	"github.com/voclab/voxgram/pkg/media"
)

// Deliverer sends transcription text back to the originating chat in the
// chat's configured presentation style.
type Deliverer struct {
	api API
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(api API) *Deliverer {
	return &Deliverer{api: api}
}

// Send delivers text to the event's chat. It returns the ids of all
// involved messages; the first entry is always the source message id, so
// the operator relay can copy the whole exchange.
//
// File style uploads the entire text as a <userID>-<messageID>.txt
// document. All other styles send chat messages: text over Telegram's
// limit is split into chunks that never break a rune, each chunk replying
// to the previous one so long transcriptions read as a thread.
func (d *Deliverer) Send(ctx context.Context, ev *media.Event, text string, style media.FormatStyle) ([]int, error) {
	if style == media.StyleFile {
		name := fmt.Sprintf("%d-%d.txt", ev.Sender.ID, ev.MessageID)
		msg, err := d.api.UploadDocument(ctx, ev.ChatID, ev.ThreadID, ev.MessageID, name, []byte(text))
		if err != nil {
			return nil, fmt.Errorf("bot: deliver file: %w", err)
		}
		return []int{ev.MessageID, msg.MessageID}, nil
	}

	entityType := ""
	switch style {
	case media.StyleQuote:
		entityType = "blockquote"
	case media.StyleExpandableQuote:
		entityType = "expandable_blockquote"
	}

	parts := splitMessage(text, maxMessageLength)
	ids := make([]int, 0, len(parts)+1)
	ids = append(ids, ev.MessageID)

	for _, part := range parts {
		req := telegram.SendMessageRequest{
			ChatID:          ev.ChatID,
			Text:            part,
			ReplyParameters: &telegram.ReplyParameters{MessageID: ids[len(ids)-1]},
			MessageThreadID: ev.ThreadID,
		}
		if entityType != "" {
			req.Entities = []telegram.MessageEntity{{
				Type:   entityType,
				Offset: 0,
				Length: utf16Len(part),
			}}
		}

		msg, err := d.api.SendMessage(ctx, req)
		if err != nil {
			return ids, fmt.Errorf("bot: deliver text part %d/%d: %w", len(ids), len(parts), err)
		}
		ids = append(ids, msg.MessageID)
	}

	return ids, nil
}

// utf16Len is the length Telegram uses for limits and entity offsets.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// splitMessage splits s into chunks of at most limit UTF-16 code units,
// never cutting inside a rune.
func splitMessage(s string, limit int) []string {
	if s == "" {
		return nil
	}

	var parts []string
	start := 0
	units := 0
	for i, r := range s {
		l := utf16.RuneLen(r)
		if units+l > limit {
			parts = append(parts, s[start:i])
			start = i
			units = 0
		}
		units += l
	}
	parts = append(parts, s[start:])
	return parts
}
