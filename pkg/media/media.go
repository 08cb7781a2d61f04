// Package media defines the shared vocabulary for inbound media requests:
// media kinds, processing modes, delivery styles, and the typed inbound
// event that the pipeline consumes.
package media

// Kind identifies the Telegram media payload carried by a message.
type Kind string

const (
	KindVoice     Kind = "voice"
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
	KindVideoNote Kind = "video_note"
	KindPhoto     Kind = "photo"
	KindDocument  Kind = "document"
)

// Transcribable reports whether this kind of media is fed to the speech
// API. Photos and documents are only logged, never transcribed.
func (k Kind) Transcribable() bool {
	switch k {
	case KindVoice, KindAudio, KindVideo, KindVideoNote:
		return true
	}
	return false
}

// Mode determines how a media item is processed.
type Mode string

const (
	ModeTranscribe Mode = "transcribe"
	ModeTranslate  Mode = "translate"
	// ModeIgnore marks requests that were suppressed (rate limited, banned,
	// disabled chat, or non-transcribable media) in the audit trail.
	ModeIgnore Mode = "ignore"
)

// FormatStyle is the presentation style for delivered transcriptions.
type FormatStyle string

const (
	StylePlain           FormatStyle = "plain"
	StyleFile            FormatStyle = "file"
	StyleQuote           FormatStyle = "quote"
	StyleExpandableQuote FormatStyle = "expandable_quote"
)

// Valid reports whether s is one of the known styles.
func (s FormatStyle) Valid() bool {
	switch s {
	case StylePlain, StyleFile, StyleQuote, StyleExpandableQuote:
		return true
	}
	return false
}

// ChatState is the ephemeral moderation marker cached per chat. The values
// are stored as integers in the shared cache.
type ChatState int

const (
	ChatDisabled ChatState = 0
	ChatBanned   ChatState = 1
)

// File is a downloaded media blob together with the filename hint passed
// to the speech API.
type File struct {
	Name string
	Data []byte
}
