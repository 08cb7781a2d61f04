package media

// Payload describes the media item attached to a message.
type Payload struct {
	Kind     Kind
	FileID   string
	FileName string // empty for voice notes and video notes
	FileSize int64  // size hint from the update; may be stale or zero
	Duration int    // seconds; zero when the kind has no duration
	MIMEType string
}

// Sender identifies the user who produced the media.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// FullName returns "First Last" or just the first name.
func (s Sender) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// ForwardOrigin records where a forwarded message originally came from.
// OriginID is zero when Telegram hides the origin (e.g. privacy settings).
type ForwardOrigin struct {
	OriginID int64
}

// Event is one inbound media message, converted once from the raw update.
// It carries every field the pipeline needs so that later stages never
// reach back into transport-level types.
type Event struct {
	ChatID    int64
	MessageID int
	ThreadID  int

	// Sender is the author of the message carrying the media. Requester is
	// whoever asked for the transcription: the command issuer for reply
	// commands, otherwise the same as Sender. Quota and operator notes
	// charge the requester; the audit row keeps the media author.
	Sender    Sender
	Requester Sender

	Payload Payload

	// Reply context: set when the media was addressed via a reply command
	// (/transcribe or /translate on a replied-to message). ReplyToID is the
	// id of the message that actually carries the media.
	IsReply   bool
	ReplyToID int

	Forward *ForwardOrigin
}

// SourceMessageID returns the id of the message carrying the media: the
// replied-to message for reply commands, the event's own message otherwise.
func (e *Event) SourceMessageID() int {
	if e.IsReply {
		return e.ReplyToID
	}
	return e.MessageID
}
