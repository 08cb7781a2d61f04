package telegram

import (
	"testing"

	"github.com/voclab/voxgram/pkg/media"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want media.Payload
		ok   bool
	}{
		{
			name: "voice",
			msg:  Message{Voice: &Voice{FileID: "v1", Duration: 12, FileSize: 2048, MIMEType: "audio/ogg"}},
			want: media.Payload{Kind: media.KindVoice, FileID: "v1", Duration: 12, FileSize: 2048, MIMEType: "audio/ogg"},
			ok:   true,
		},
		{
			name: "audio keeps file name",
			msg:  Message{Audio: &Audio{FileID: "a1", FileName: "song.mp3", Duration: 180, FileSize: 1 << 20}},
			want: media.Payload{Kind: media.KindAudio, FileID: "a1", FileName: "song.mp3", Duration: 180, FileSize: 1 << 20},
			ok:   true,
		},
		{
			name: "video note",
			msg:  Message{VideoNote: &VideoNote{FileID: "vn1", Duration: 8, FileSize: 4096}},
			want: media.Payload{Kind: media.KindVideoNote, FileID: "vn1", Duration: 8, FileSize: 4096},
			ok:   true,
		},
		{
			name: "photo picks largest size",
			msg: Message{Photo: []PhotoSize{
				{FileID: "small", FileSize: 100},
				{FileID: "big", FileSize: 900},
				{FileID: "medium", FileSize: 400},
			}},
			want: media.Payload{Kind: media.KindPhoto, FileID: "big", FileSize: 900},
			ok:   true,
		},
		{
			name: "text only",
			msg:  Message{Text: "no media here"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPayload(&tt.msg)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("payload = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestToEvent_DirectMessage(t *testing.T) {
	msg := &Message{
		MessageID:       10,
		MessageThreadID: 3,
		Chat:            Chat{ID: -100500},
		From:            &User{ID: 77, Username: "alice", FirstName: "Alice"},
	}
	payload := media.Payload{Kind: media.KindVoice, FileID: "v1"}

	ev := ToEvent(msg, msg, payload)

	if ev.ChatID != -100500 || ev.MessageID != 10 || ev.ThreadID != 3 {
		t.Errorf("unexpected addressing: %+v", ev)
	}
	if ev.IsReply || ev.ReplyToID != 0 {
		t.Errorf("direct message marked as reply: %+v", ev)
	}
	if ev.Sender.ID != 77 || ev.Sender.Username != "alice" {
		t.Errorf("unexpected sender: %+v", ev.Sender)
	}
	if ev.Requester != ev.Sender {
		t.Errorf("Requester = %+v, want same as sender for direct media", ev.Requester)
	}
	if ev.Forward != nil {
		t.Errorf("unexpected forward origin: %+v", ev.Forward)
	}
}

func TestToEvent_ReplyCommandUsesCarrier(t *testing.T) {
	carrier := &Message{
		MessageID: 5,
		Chat:      Chat{ID: 42},
		From:      &User{ID: 88, Username: "bob"},
		Voice:     &Voice{FileID: "v2"},
	}
	command := &Message{
		MessageID:      9,
		Chat:           Chat{ID: 42},
		From:           &User{ID: 77, Username: "alice"},
		ReplyToMessage: carrier,
	}

	ev := ToEvent(command, carrier, media.Payload{Kind: media.KindVoice, FileID: "v2"})

	if !ev.IsReply || ev.ReplyToID != 5 {
		t.Errorf("reply linkage wrong: %+v", ev)
	}
	if ev.MessageID != 9 {
		t.Errorf("MessageID = %d, want command message id 9", ev.MessageID)
	}
	// The sender is the media's author; the requester is whoever issued
	// the command.
	if ev.Sender.ID != 88 {
		t.Errorf("Sender.ID = %d, want 88", ev.Sender.ID)
	}
	if ev.Requester.ID != 77 || ev.Requester.Username != "alice" {
		t.Errorf("Requester = %+v, want the command issuer", ev.Requester)
	}
}

func TestToEvent_ForwardOrigin(t *testing.T) {
	msg := &Message{
		MessageID:     4,
		Chat:          Chat{ID: 42},
		From:          &User{ID: 77},
		ForwardOrigin: &MessageOrigin{Type: "user", SenderUser: &User{ID: 999}},
	}

	ev := ToEvent(msg, msg, media.Payload{Kind: media.KindVoice, FileID: "v3"})

	if ev.Forward == nil || ev.Forward.OriginID != 999 {
		t.Errorf("Forward = %+v, want origin 999", ev.Forward)
	}
}

func TestMessageOriginID_HiddenUser(t *testing.T) {
	origin := &MessageOrigin{Type: "hidden_user", SenderUserName: "Someone"}
	id, forwarded := origin.OriginID()
	if !forwarded {
		t.Fatal("hidden origin should still count as forwarded")
	}
	if id != 0 {
		t.Errorf("id = %d, want 0", id)
	}
}
