package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voclab/voxgram/internal/config"
	"github.com/voclab/voxgram/internal/store"
	"github.com/voclab/voxgram/internal/telegram"
)

// DigestJob posts a periodic usage summary to the operator channel.
type DigestJob struct {
	api      API
	storage  Storage
	logger   *slog.Logger
	chatID   int64
	threadID int
	schedule string
}

// NewDigestJob creates the digest job. The schedule is a 5-field cron
// expression.
func NewDigestJob(api API, storage Storage, logger *slog.Logger, operator config.OperatorConfig, schedule string) *DigestJob {
	return &DigestJob{
		api:      api,
		storage:  storage,
		logger:   logger,
		chatID:   operator.ChatID,
		threadID: operator.ThreadID,
		schedule: schedule,
	}
}

func (j *DigestJob) Name() string { return "usage-digest" }

func (j *DigestJob) Schedule() string { return j.schedule }

func (j *DigestJob) Run(ctx context.Context) error {
	if j.chatID == 0 {
		return nil
	}

	stats, err := j.storage.Stats(ctx)
	if err != nil {
		return fmt.Errorf("bot: digest stats: %w", err)
	}

	_, err = j.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:          j.chatID,
		MessageThreadID: j.threadID,
		Text:            formatDigest(stats),
		ParseMode:       "HTML",
	})
	if err != nil {
		return fmt.Errorf("bot: digest send: %w", err)
	}

	j.logger.Info("usage digest posted", "requests", stats.Requests.UsageCount, "chats", stats.TotalChats)
	return nil
}

func formatDigest(g *store.GlobalStats) string {
	st := g.Requests
	lastUsage := "never"
	if st.LastUsage != nil {
		lastUsage = st.LastUsage.Format(time.DateTime)
	}

	lines := []string{
		"📊 <b>Usage digest</b>",
		"",
		fmt.Sprintf("<b>Total requests:</b> %d", st.UsageCount),
		fmt.Sprintf("<b>Unique users:</b> %d", st.UsersCount),
		fmt.Sprintf("<b>Errors:</b> %d", st.ErrorCount),
		fmt.Sprintf("<b>Last usage:</b> %s", lastUsage),
		"",
		fmt.Sprintf("<b>Chats:</b> %d total, %d active", g.TotalChats, g.ChatsWithRequests),
		fmt.Sprintf("- Private: %d", g.PrivateChats),
		fmt.Sprintf("- Supergroups: %d", g.Supergroups),
		fmt.Sprintf("- Banned: %d", g.BannedChats),
		fmt.Sprintf("- Logging enabled: %d", g.LoggingEnabled),
		"",
		"<b>By mode:</b>",
		fmt.Sprintf("- Transcribe: %d", st.ModeTranscribe),
		fmt.Sprintf("- Translate: %d", st.ModeTranslate),
		"",
		"<b>By media type:</b>",
		fmt.Sprintf("- Audio: %d", st.MediaAudio),
		fmt.Sprintf("- Voice: %d", st.MediaVoice),
		fmt.Sprintf("- Video: %d", st.MediaVideo),
		fmt.Sprintf("- Video Note: %d", st.MediaVideoNote),
	}
	return strings.Join(lines, "\n")
}
