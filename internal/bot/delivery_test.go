package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/voclab/voxgram/pkg/media"
)

func deliveryEvent() *media.Event {
	return &media.Event{
		ChatID:    -200,
		MessageID: 33,
		Sender:    media.Sender{ID: 7},
	}
}

func TestSend_Plain(t *testing.T) {
	api := &fakeAPI{}
	d := NewDeliverer(api)

	ids, err := d.Send(context.Background(), deliveryEvent(), "short text", media.StylePlain)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(ids) != 2 || ids[0] != 33 {
		t.Fatalf("ids = %v, want [33 <new>]", ids)
	}
	req := api.sent[0]
	if req.ReplyParameters.MessageID != 33 {
		t.Errorf("reply to = %d, want 33", req.ReplyParameters.MessageID)
	}
	if len(req.Entities) != 0 {
		t.Errorf("plain style must not carry entities, got %v", req.Entities)
	}
}

func TestSend_SplitsLongTextIntoThread(t *testing.T) {
	api := &fakeAPI{}
	d := NewDeliverer(api)

	text := strings.Repeat("a", maxMessageLength+100)
	ids, err := d.Send(context.Background(), deliveryEvent(), text, media.StylePlain)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("sent = %d messages, want 2", len(api.sent))
	}
	if got := utf16Len(api.sent[0].Text); got != maxMessageLength {
		t.Errorf("first chunk length = %d, want %d", got, maxMessageLength)
	}
	// The second chunk replies to the first delivered message, not to the
	// source.
	if api.sent[1].ReplyParameters.MessageID != ids[1] {
		t.Errorf("second chunk replies to %d, want %d", api.sent[1].ReplyParameters.MessageID, ids[1])
	}
	if api.sent[0].Text+api.sent[1].Text != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSend_QuoteStyles(t *testing.T) {
	tests := []struct {
		style media.FormatStyle
		want  string
	}{
		{media.StyleQuote, "blockquote"},
		{media.StyleExpandableQuote, "expandable_blockquote"},
	}
	for _, tt := range tests {
		api := &fakeAPI{}
		text := "héllo wörld"
		if _, err := NewDeliverer(api).Send(context.Background(), deliveryEvent(), text, tt.style); err != nil {
			t.Fatalf("%s: %v", tt.style, err)
		}
		ents := api.sent[0].Entities
		if len(ents) != 1 || ents[0].Type != tt.want {
			t.Errorf("%s: entities = %v", tt.style, ents)
		}
		if ents[0].Offset != 0 || ents[0].Length != utf16Len(text) {
			t.Errorf("%s: entity span = %d+%d", tt.style, ents[0].Offset, ents[0].Length)
		}
	}
}

func TestSend_FileStyle(t *testing.T) {
	api := &fakeAPI{}
	ids, err := NewDeliverer(api).Send(context.Background(), deliveryEvent(), "contents", media.StyleFile)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(api.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(api.uploads))
	}
	up := api.uploads[0]
	if up.filename != "7-33.txt" {
		t.Errorf("filename = %q, want 7-33.txt", up.filename)
	}
	if string(up.data) != "contents" {
		t.Errorf("data = %q", up.data)
	}
	if up.replyTo != 33 {
		t.Errorf("replyTo = %d, want 33", up.replyTo)
	}
	if len(ids) != 2 || ids[0] != 33 {
		t.Errorf("ids = %v", ids)
	}
}

func TestSplitMessage_NeverCutsRunes(t *testing.T) {
	// Each rune is 2 UTF-16 units (surrogate pairs), so a limit of 5 can
	// hold only two of them per chunk.
	text := strings.Repeat("𝄞", 4)
	parts := splitMessage(text, 5)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	for i, p := range parts {
		if !strings.HasPrefix(p, "𝄞") {
			t.Errorf("part %d starts mid-rune: %q", i, p)
		}
		if utf16Len(p) > 5 {
			t.Errorf("part %d exceeds limit: %d units", i, utf16Len(p))
		}
	}
}

func TestSplitMessage_Empty(t *testing.T) {
	if parts := splitMessage("", 10); parts != nil {
		t.Errorf("parts = %v, want nil", parts)
	}
}
