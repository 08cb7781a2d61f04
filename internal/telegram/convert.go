package telegram

import (
	"github.com/voclab/voxgram/pkg/media"
)

// ExtractPayload returns the media payload attached to msg, if any.
// Photos pick the largest available size.
func ExtractPayload(msg *Message) (media.Payload, bool) {
	switch {
	case msg.Voice != nil:
		return media.Payload{
			Kind:     media.KindVoice,
			FileID:   msg.Voice.FileID,
			FileSize: msg.Voice.FileSize,
			Duration: msg.Voice.Duration,
			MIMEType: msg.Voice.MIMEType,
		}, true
	case msg.Audio != nil:
		return media.Payload{
			Kind:     media.KindAudio,
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			FileSize: msg.Audio.FileSize,
			Duration: msg.Audio.Duration,
			MIMEType: msg.Audio.MIMEType,
		}, true
	case msg.Video != nil:
		return media.Payload{
			Kind:     media.KindVideo,
			FileID:   msg.Video.FileID,
			FileName: msg.Video.FileName,
			FileSize: msg.Video.FileSize,
			Duration: msg.Video.Duration,
			MIMEType: msg.Video.MIMEType,
		}, true
	case msg.VideoNote != nil:
		return media.Payload{
			Kind:     media.KindVideoNote,
			FileID:   msg.VideoNote.FileID,
			FileSize: msg.VideoNote.FileSize,
			Duration: msg.VideoNote.Duration,
		}, true
	case msg.Document != nil:
		return media.Payload{
			Kind:     media.KindDocument,
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			FileSize: msg.Document.FileSize,
			MIMEType: msg.Document.MIMEType,
		}, true
	case len(msg.Photo) > 0:
		largest := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.FileSize > largest.FileSize {
				largest = p
			}
		}
		return media.Payload{
			Kind:     media.KindPhoto,
			FileID:   largest.FileID,
			FileSize: largest.FileSize,
		}, true
	}
	return media.Payload{}, false
}

// ToEvent converts one inbound message carrying media into the typed event
// consumed by the pipeline. When the media lives on a replied-to message
// (reply commands), pass that message as carrier and the command message
// as msg.
func ToEvent(msg, carrier *Message, payload media.Payload) *media.Event {
	ev := &media.Event{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		ThreadID:  msg.MessageThreadID,
		Payload:   payload,
	}
	if msg.From != nil {
		ev.Requester = toSender(msg.From)
	}

	source := msg
	if carrier != nil && carrier != msg {
		ev.IsReply = true
		ev.ReplyToID = carrier.MessageID
		source = carrier
	}

	if source.From != nil {
		ev.Sender = toSender(source.From)
	}

	if id, forwarded := source.ForwardOrigin.OriginID(); forwarded {
		ev.Forward = &media.ForwardOrigin{OriginID: id}
	}

	return ev
}

func toSender(u *User) media.Sender {
	return media.Sender{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
