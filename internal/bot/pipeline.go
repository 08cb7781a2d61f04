package bot

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/voclab/voxgram/internal/config"
	"github.com/voclab/voxgram/internal/metrics"
	"github.com/voclab/voxgram/internal/ratelimit"
	"github.com/voclab/voxgram/internal/retry"
	"github.com/voclab/voxgram/internal/store"
	"github.com/voclab/voxgram/internal/telegram"
	"github.com/voclab/voxgram/pkg/media"
)

// Outcome is the terminal state of one media request. Every request ends
// in exactly one outcome.
type Outcome string

const (
	OutcomeDelivered         Outcome = "delivered"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeSuppressed        Outcome = "suppressed"
	OutcomeValidationFailed  Outcome = "validation_failed"
	OutcomeSpeechNotDetected Outcome = "speech_not_detected"
	OutcomeFailed            Outcome = "failed"
	OutcomeLoggedOnly        Outcome = "logged_only"
)

// Pipeline processes one inbound media event end to end: admission,
// gating, validation, download, transcription, delivery, and audit.
type Pipeline struct {
	api         API
	storage     Storage
	limiter     Limiter
	transcriber Transcriber
	deliver     *Deliverer
	audit       *Auditor
	metrics     *metrics.Metrics
	logger      *slog.Logger
	limits      config.LimitsConfig

	retries    int
	retryDelay time.Duration

	now func() time.Time
}

// NewPipeline wires the pipeline. Retries and delay apply to both the
// media download and the speech API call.
func NewPipeline(api API, storage Storage, limiter Limiter, transcriber Transcriber,
	deliver *Deliverer, audit *Auditor, m *metrics.Metrics, logger *slog.Logger,
	limits config.LimitsConfig, retries int, retryDelay time.Duration) *Pipeline {
	return &Pipeline{
		api:         api,
		storage:     storage,
		limiter:     limiter,
		transcriber: transcriber,
		deliver:     deliver,
		audit:       audit,
		metrics:     m,
		logger:      logger,
		limits:      limits,
		retries:     retries,
		retryDelay:  retryDelay,
		now:         time.Now,
	}
}

// Process runs the full pipeline for one transcribable media event.
// explicit carries the per-command mode; empty means the chat default
// applies.
func (p *Pipeline) Process(ctx context.Context, ev *media.Event, explicit media.Mode) Outcome {
	start := p.now()
	p.metrics.RecordMedia(string(ev.Payload.Kind))

	outcome := p.process(ctx, ev, explicit, start)

	p.metrics.RecordRequest(string(outcome), p.now().Sub(start).Seconds())
	return outcome
}

func (p *Pipeline) process(ctx context.Context, ev *media.Event, explicit media.Mode, start time.Time) Outcome {
	logger := p.logger.With("chat_id", ev.ChatID, "user_id", ev.Sender.ID, "media", ev.Payload.Kind)

	chat, err := p.storage.GetOrCreateChat(ctx, ev.ChatID)
	if err != nil {
		logger.Error("chat config load failed", "error", err)
		return OutcomeFailed
	}

	mode := explicit
	if mode == "" {
		mode = chat.DefaultMode
	}
	rec := p.newRecord(ev, chat, mode)

	audited := false
	writeAudit := func() {
		if audited {
			return
		}
		audited = true
		rec.TotalTime = p.now().Sub(start)
		if err := p.storage.InsertRequest(ctx, rec); err != nil {
			logger.Error("audit write failed", "error", err)
		}
	}

	// Admission. Quota is charged to the requester, not the media author,
	// so replying /transcribe to someone else's voice note spends the
	// issuer's budget. Rate-limit denials are told to the user, moderation
	// denials stay silent.
	if d := p.limiter.Admit(ctx, ev.ChatID, ev.Requester.ID); !d.Allowed {
		outcome := OutcomeSuppressed
		rec.Mode = media.ModeIgnore
		switch d.Reason {
		case ratelimit.ReasonUserLimit:
			outcome = OutcomeRateLimited
			p.replyBestEffort(ctx, ev, rec, msgUserLimitExceeded)
			p.noteBestEffort(ctx, ev, rec, "User rate limit exceeded", false)
		case ratelimit.ReasonGlobalLimit:
			outcome = OutcomeRateLimited
			p.replyBestEffort(ctx, ev, rec, msgGlobalLimitExceeded)
			p.noteBestEffort(ctx, ev, rec, "Global requests limit exceeded", true)
		}
		if chat.LoggingEnabled {
			p.relayEarlyExit(ctx, ev, rec)
			writeAudit()
		}
		return outcome
	}

	// Gating against the durable config. The cache flag is re-asserted
	// here so the Lua script can short-circuit the next 24 hours.
	if chat.Banned() {
		if err := p.limiter.MarkChat(ctx, ev.ChatID, media.ChatBanned); err != nil {
			logger.Warn("chat state cache update failed", "error", err)
		}
		rec.Mode = media.ModeIgnore
		if chat.LoggingEnabled {
			p.relayEarlyExit(ctx, ev, rec)
			writeAudit()
		}
		return OutcomeSuppressed
	}
	if mode == media.ModeIgnore && explicit == "" {
		if err := p.limiter.MarkChat(ctx, ev.ChatID, media.ChatDisabled); err != nil {
			logger.Warn("chat state cache update failed", "error", err)
		}
		if chat.LoggingEnabled {
			p.relayEarlyExit(ctx, ev, rec)
			writeAudit()
		}
		return OutcomeSuppressed
	}

	// Validation. Violations accumulate into a single combined reply.
	var problems []string
	if p.limits.MaxFileSize > 0 && ev.Payload.FileSize > p.limits.MaxFileSize {
		problems = append(problems, fmt.Sprintf("File is too big. Limit: %s!", formatBytes(p.limits.MaxFileSize)))
	}

	filename := ev.Payload.FileName
	var filePath string
	if len(problems) == 0 {
		file, err := p.api.GetFile(ctx, ev.Payload.FileID)
		if err != nil {
			logger.Warn("file path resolution failed", "error", err)
		} else {
			filePath = file.FilePath
			if filename == "" {
				filename = path.Base(filePath)
			}
			// The inbound size hint may be stale or absent; the resolved
			// file carries the authoritative size.
			if p.limits.MaxFileSize > 0 && file.FileSize > p.limits.MaxFileSize {
				problems = append(problems, fmt.Sprintf("File is too big. Limit: %s!", formatBytes(p.limits.MaxFileSize)))
			}
		}
	}

	ext := fileExtension(filename)
	rec.FileType = ext

	if p.limits.MaxDuration > 0 && ev.Payload.Duration > p.limits.MaxDuration {
		problems = append(problems, fmt.Sprintf("Audio too long. Limit: %d seconds!", p.limits.MaxDuration))
	}
	if filename != "" {
		if _, ok := supportedExtensions[ext]; !ok {
			problems = append(problems, fmt.Sprintf("Media format not supported: %s!", ext))
		}
	}
	if filePath == "" && len(problems) == 0 {
		problems = append(problems, "Can not download the requested file!")
	}

	if len(problems) > 0 {
		combined := strings.Join(problems, " ")
		rec.Error = combined
		p.replyBestEffort(ctx, ev, rec, combined)
		if chat.LoggingEnabled {
			p.noteBestEffort(ctx, ev, rec, combined, true)
			p.relayEarlyExit(ctx, ev, rec)
		}
		writeAudit()
		return OutcomeValidationFailed
	}

	if err := p.api.SendChatAction(ctx, ev.ChatID, "typing"); err != nil {
		logger.Debug("chat action failed", "error", err)
	}

	// Download.
	downloadStart := p.now()
	data, err := retry.Do(ctx, p.retries, p.retryDelay, func() ([]byte, error) {
		return p.api.DownloadFile(ctx, filePath)
	})
	rec.DownloadTime = p.now().Sub(downloadStart)
	if err != nil {
		p.failed(ctx, ev, rec, err, nil)
		writeAudit()
		return OutcomeFailed
	}
	p.metrics.RecordDownload(rec.DownloadTime.Seconds())

	// Downstream tooling keys the container format off the suffix, so the
	// legacy voice-note alias is normalised first.
	if strings.HasSuffix(filename, ".oga") {
		filename = strings.TrimSuffix(filename, ".oga") + ".ogg"
	}
	file := media.File{Name: filename, Data: data}

	// Transcription. APITime covers the last attempt only, so a retried
	// request reports the latency of the call that actually produced text.
	text, err := retry.Do(ctx, p.retries, p.retryDelay, func() (string, error) {
		apiStart := p.now()
		out, err := p.transcriber.Transcribe(ctx, file, mode, rec.Language)
		rec.APITime = p.now().Sub(apiStart)
		return out, err
	})
	if err != nil {
		p.failed(ctx, ev, rec, err, &file)
		writeAudit()
		return OutcomeFailed
	}
	p.metrics.RecordSpeechCall(rec.APITime.Seconds())

	if speechNotDetected(text) {
		p.replyBestEffort(ctx, ev, rec, msgSpeechNotDetected)
		if chat.LoggingEnabled {
			p.noteBestEffort(ctx, ev, rec, msgSpeechNotDetected, false)
			p.relayMedia(ctx, ev, rec, &file)
		}
		writeAudit()
		return OutcomeSpeechNotDetected
	}
	rec.Response = text

	// Delivery.
	ids, err := p.deliver.Send(ctx, ev, text, chat.FormatStyle)
	if err != nil {
		p.failed(ctx, ev, rec, err, &file)
		writeAudit()
		return OutcomeFailed
	}

	if chat.LoggingEnabled {
		// The relay copies the media-carrying message, not the command
		// that pointed at it.
		ids[0] = ev.SourceMessageID()
		loggedID, err := p.audit.RelayTranscription(ctx, ev, ids)
		if err != nil {
			appendError(rec, fmt.Sprintf("Can not relay transcription: %v", err))
			logger.Warn("transcription relay failed", "error", err)
		} else {
			rec.LoggedMessageID = loggedID
		}
	}

	writeAudit()
	return OutcomeDelivered
}

// LogNonTranscribable audits photo and document messages without touching
// admission, validation, or the speech API.
func (p *Pipeline) LogNonTranscribable(ctx context.Context, ev *media.Event) Outcome {
	start := p.now()
	p.metrics.RecordMedia(string(ev.Payload.Kind))

	chat, err := p.storage.GetOrCreateChat(ctx, ev.ChatID)
	if err != nil {
		p.logger.Error("chat config load failed", "error", err, "chat_id", ev.ChatID)
		return OutcomeFailed
	}
	if !chat.LoggingEnabled {
		return OutcomeLoggedOnly
	}

	rec := p.newRecord(ev, chat, media.ModeIgnore)
	p.noteBestEffort(ctx, ev, rec, "Logged media", false)
	p.relayEarlyExit(ctx, ev, rec)

	rec.TotalTime = p.now().Sub(start)
	if err := p.storage.InsertRequest(ctx, rec); err != nil {
		p.logger.Error("audit write failed", "error", err, "chat_id", ev.ChatID)
	}
	p.metrics.RecordRequest(string(OutcomeLoggedOnly), rec.TotalTime.Seconds())
	return OutcomeLoggedOnly
}

// newRecord builds the audit row skeleton before any stage runs, so a
// failure at any point still has identity and sizing data to persist.
func (p *Pipeline) newRecord(ev *media.Event, chat *store.ChatConfig, mode media.Mode) *store.RequestRecord {
	language := chat.Language
	if mode == media.ModeTranslate {
		language = "en"
	}
	rec := &store.RequestRecord{
		ChatID:    ev.ChatID,
		UserID:    ev.Sender.ID,
		MessageID: ev.SourceMessageID(),
		Mode:      mode,
		MediaType: ev.Payload.Kind,
		FileID:    ev.Payload.FileID,
		FileType:  fileExtension(ev.Payload.FileName),
		FileSize:  ev.Payload.FileSize,
		Duration:  ev.Payload.Duration,
		Language:  language,
	}
	if ev.Forward != nil {
		rec.IsForward = true
		rec.ForwardChatID = ev.Forward.OriginID
	}
	return rec
}

// failed handles the generic failure branch: a short generic reply to the
// user, the full error plus any partial transcript to the operators, and
// a media relay with the downloaded buffer as last-resort source.
func (p *Pipeline) failed(ctx context.Context, ev *media.Event, rec *store.RequestRecord, cause error, downloaded *media.File) {
	errText := cause.Error()
	rec.Error = errText

	p.replyBestEffort(ctx, ev, rec, msgProcessingError)
	note := "Error processing media: " + errText
	if rec.Response != "" {
		note += "\n\n" + rec.Response
	}
	p.noteBestEffort(ctx, ev, rec, note, true)
	p.relayMedia(ctx, ev, rec, downloaded)
}

func (p *Pipeline) replyBestEffort(ctx context.Context, ev *media.Event, rec *store.RequestRecord, text string) {
	_, err := p.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:          ev.ChatID,
		Text:            text,
		ReplyParameters: &telegram.ReplyParameters{MessageID: ev.MessageID},
		MessageThreadID: ev.ThreadID,
	})
	if err != nil {
		appendError(rec, fmt.Sprintf("Can not send reply: %v", err))
		p.logger.Warn("reply failed", "error", err, "chat_id", ev.ChatID)
	}
}

func (p *Pipeline) noteBestEffort(ctx context.Context, ev *media.Event, rec *store.RequestRecord, text string, isError bool) {
	if err := p.audit.Note(ctx, ev, text, isError); err != nil {
		appendError(rec, fmt.Sprintf("Can not send message with error: %v", err))
		p.logger.Warn("operator note failed", "error", err, "chat_id", ev.ChatID)
	}
}

func (p *Pipeline) relayMedia(ctx context.Context, ev *media.Event, rec *store.RequestRecord, downloaded *media.File) {
	id, err := p.audit.RelayMedia(ctx, ev, downloaded)
	if err != nil {
		appendError(rec, fmt.Sprintf("Can not send media to admins: %v", err))
		p.logger.Warn("media relay failed", "error", err, "chat_id", ev.ChatID)
		return
	}
	rec.LoggedMessageID = id
}

// relayEarlyExit is the suppression-path relay (no downloaded buffer yet).
func (p *Pipeline) relayEarlyExit(ctx context.Context, ev *media.Event, rec *store.RequestRecord) {
	p.relayMedia(ctx, ev, rec, nil)
}

func appendError(rec *store.RequestRecord, msg string) {
	if rec.Error == "" {
		rec.Error = msg
		return
	}
	rec.Error += ". " + msg
}

// speechNotDetected applies the filler-phrase heuristic: very short output
// matching a known silence misrecognition counts as no speech.
func speechNotDetected(text string) bool {
	if text == "" {
		return true
	}
	if len([]rune(text)) >= 30 {
		return false
	}
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', ':', '!', '?':
			return -1
		}
		return r
	}, text)
	_, ok := fillerPhrases[strings.ToLower(strings.TrimSpace(stripped))]
	return ok
}

// fileExtension mirrors the lenient split-on-dot rule used for the
// supported-format check: text after the final dot, lowercased, or the
// whole name when there is no dot.
func fileExtension(name string) string {
	if name == "" {
		return ""
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ToLower(name[i+1:])
	}
	return strings.ToLower(name)
}

// formatBytes renders a byte count the way limits are surfaced to users.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.0f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
