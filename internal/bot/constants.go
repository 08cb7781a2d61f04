package bot

// maxMessageLength is Telegram's message size limit in UTF-16 code units.
const maxMessageLength = 4096

// supportedExtensions are the media container formats the speech API accepts.
var supportedExtensions = map[string]struct{}{
	"flac": {},
	"mp3":  {},
	"mp4":  {},
	"mpeg": {},
	"mpga": {},
	"m4a":  {},
	"ogg":  {},
	"oga":  {},
	"wav":  {},
	"webm": {},
}

// fillerPhrases are short outputs the speech model is known to hallucinate
// on silence or background noise. Matched after stripping punctuation and
// lowercasing, only when the whole output is short.
var fillerPhrases = map[string]struct{}{
	"thank you":              {},
	"thank you for watching": {},
	"thanks for watching":    {},
	"you":                    {},
	"bye":                    {},
	"so":                     {},
	"okay":                   {},
	"hmm":                    {},
	"mbc 뉴스 이덕영입니다":          {},
	"ご視聴ありがとうございました":        {},
}

// User-facing replies. Kept short and generic; internal error detail goes
// to the operator channel only.
const (
	msgUserLimitExceeded   = "You exceeded requests limit"
	msgGlobalLimitExceeded = "Global requests limit exceeded"
	msgSpeechNotDetected   = "Speech not detected"
	msgProcessingError     = "Error processing media"
	msgInvalidUsage        = "Please reply to voice, audio or video message!"
	msgNotAllowed          = "This command is only available to operators."
)
