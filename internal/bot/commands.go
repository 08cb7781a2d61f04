package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/voclab/voxgram/internal/config"
	"github.com/voclab/voxgram/internal/metrics"
	"github.com/voclab/voxgram/internal/store"
	"github.com/voclab/voxgram/internal/telegram"
	"github.com/voclab/voxgram/pkg/media"
)

// Bot routes inbound Telegram updates to the media pipeline and the
// command handlers.
type Bot struct {
	api      API
	pipeline *Pipeline
	storage  Storage
	limiter  Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	limits   config.LimitsConfig
	username string

	admins map[int64]struct{}
}

// New creates the update router. username is the bot's own username, used
// to strip /command@botname addressing in groups.
func New(api API, pipeline *Pipeline, storage Storage, limiter Limiter,
	m *metrics.Metrics, logger *slog.Logger, limits config.LimitsConfig,
	operator config.OperatorConfig, username string) *Bot {
	admins := make(map[int64]struct{}, len(operator.Admins))
	for _, id := range operator.Admins {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:      api,
		pipeline: pipeline,
		storage:  storage,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
		limits:   limits,
		username: username,
		admins:   admins,
	}
}

// HandleUpdate processes one Telegram update. It is the handler passed to
// both the poller and the webhook receiver.
func (b *Bot) HandleUpdate(ctx context.Context, u *telegram.Update) {
	b.metrics.RecordUpdate()

	msg := u.Message
	if msg == nil {
		return
	}

	if cmd, args, ok := parseCommand(msg.Text, b.username); ok {
		b.handleCommand(ctx, msg, cmd, args)
		return
	}

	payload, ok := telegram.ExtractPayload(msg)
	if !ok {
		return
	}
	ev := telegram.ToEvent(msg, msg, payload)

	if payload.Kind.Transcribable() {
		b.pipeline.Process(ctx, ev, "")
		return
	}
	b.pipeline.LogNonTranscribable(ctx, ev)
}

// parseCommand splits "/cmd@bot arg1 arg2" into its command name and
// arguments. The bot-address suffix is only accepted for this bot.
func parseCommand(text, username string) (cmd string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		if username != "" && cmd[at+1:] != username {
			return "", nil, false
		}
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return cmd, fields[1:], true
}

func (b *Bot) isAdmin(userID int64) bool {
	_, ok := b.admins[userID]
	return ok
}

// canConfigure reports whether the sender may change this chat's settings.
// Private chats are self-service; group settings are restricted to the
// configured operators.
func (b *Bot) canConfigure(chatID, userID int64) bool {
	return chatID > 0 || b.isAdmin(userID)
}

func (b *Bot) handleCommand(ctx context.Context, msg *telegram.Message, cmd string, args []string) {
	b.metrics.RecordCommand(cmd)

	switch cmd {
	case "start", "help":
		b.replyHTML(ctx, msg, b.startMessage())
	case "transcribe":
		b.handleReplyCommand(ctx, msg, media.ModeTranscribe)
	case "translate":
		b.handleReplyCommand(ctx, msg, media.ModeTranslate)
	case "language":
		b.handleLanguage(ctx, msg, args)
	case "format":
		b.handleFormat(ctx, msg, args)
	case "mode":
		b.handleMode(ctx, msg, args)
	case "logging":
		b.handleLogging(ctx, msg, args)
	case "ban":
		b.handleBan(ctx, msg, args)
	case "unban":
		b.handleUnban(ctx, msg, args)
	case "stats":
		b.handleStats(ctx, msg, args)
	case "chats":
		b.handleChats(ctx, msg, args)
	}
}

// handleReplyCommand runs the pipeline with an explicit mode against the
// media carried by the replied-to message.
func (b *Bot) handleReplyCommand(ctx context.Context, msg *telegram.Message, mode media.Mode) {
	carrier := msg.ReplyToMessage
	if carrier == nil {
		b.reply(ctx, msg, msgInvalidUsage)
		return
	}
	payload, ok := telegram.ExtractPayload(carrier)
	if !ok || !payload.Kind.Transcribable() {
		b.reply(ctx, msg, msgInvalidUsage)
		return
	}

	ev := telegram.ToEvent(msg, carrier, payload)
	b.pipeline.Process(ctx, ev, mode)
}

func (b *Bot) handleLanguage(ctx context.Context, msg *telegram.Message, args []string) {
	if !b.authorizeConfigure(ctx, msg) {
		return
	}
	if len(args) != 1 {
		b.reply(ctx, msg, "Usage: /language {code} or /language all")
		return
	}

	code := strings.ToLower(args[0])
	if code == "all" {
		code = ""
	} else if _, ok := languageCodes[code]; !ok {
		b.reply(ctx, msg, "Unknown language code: "+args[0])
		return
	}

	if err := b.configureChat(ctx, msg, func(chatID int64) error {
		return b.storage.SetLanguage(ctx, chatID, code)
	}); err != nil {
		return
	}
	if code == "" {
		b.reply(ctx, msg, "Language set to multilingual (auto-detect)")
	} else {
		b.reply(ctx, msg, "Language set to "+languageCodes[code])
	}
}

func (b *Bot) handleFormat(ctx context.Context, msg *telegram.Message, args []string) {
	if !b.authorizeConfigure(ctx, msg) {
		return
	}
	if len(args) != 1 {
		b.reply(ctx, msg, "Usage: /format {plain|file|quote|expandable_quote}")
		return
	}

	style := media.FormatStyle(strings.ToLower(args[0]))
	if !style.Valid() {
		b.reply(ctx, msg, "Unknown format style: "+args[0])
		return
	}

	if err := b.configureChat(ctx, msg, func(chatID int64) error {
		return b.storage.SetFormatStyle(ctx, chatID, style)
	}); err != nil {
		return
	}
	b.reply(ctx, msg, "Format style set to "+string(style))
}

func (b *Bot) handleMode(ctx context.Context, msg *telegram.Message, args []string) {
	if !b.authorizeConfigure(ctx, msg) {
		return
	}
	if len(args) != 1 {
		b.reply(ctx, msg, "Usage: /mode {transcribe|translate|disable}")
		return
	}

	var mode media.Mode
	switch strings.ToLower(args[0]) {
	case "transcribe":
		mode = media.ModeTranscribe
	case "translate":
		mode = media.ModeTranslate
	case "disable":
		mode = media.ModeIgnore
	default:
		b.reply(ctx, msg, "Unknown mode: "+args[0])
		return
	}

	if err := b.configureChat(ctx, msg, func(chatID int64) error {
		return b.storage.SetDefaultMode(ctx, chatID, mode)
	}); err != nil {
		return
	}
	if mode == media.ModeIgnore {
		// The cached disable flag would otherwise keep suppressing for a
		// day after the next /mode change; refresh it eagerly instead.
		if err := b.limiter.MarkChat(ctx, msg.Chat.ID, media.ChatDisabled); err != nil {
			b.logger.Warn("chat state cache update failed", "error", err, "chat_id", msg.Chat.ID)
		}
		b.reply(ctx, msg, "Automatic transcription disabled")
		return
	}
	if err := b.limiter.ClearChat(ctx, msg.Chat.ID); err != nil {
		b.logger.Warn("chat state cache clear failed", "error", err, "chat_id", msg.Chat.ID)
	}
	b.reply(ctx, msg, "Default mode set to "+string(mode))
}

func (b *Bot) handleLogging(ctx context.Context, msg *telegram.Message, args []string) {
	if !b.authorizeConfigure(ctx, msg) {
		return
	}
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		b.reply(ctx, msg, "Usage: /logging {on|off}")
		return
	}

	enabled := args[0] == "on"
	if err := b.configureChat(ctx, msg, func(chatID int64) error {
		return b.storage.SetLogging(ctx, chatID, enabled)
	}); err != nil {
		return
	}
	if enabled {
		b.reply(ctx, msg, "Logging enabled")
	} else {
		b.reply(ctx, msg, "Logging disabled")
	}
}

// authorizeConfigure gates settings commands; unauthorized attempts are
// answered, not ignored, so group members know why nothing changed.
func (b *Bot) authorizeConfigure(ctx context.Context, msg *telegram.Message) bool {
	if msg.From == nil {
		return false
	}
	if b.canConfigure(msg.Chat.ID, msg.From.ID) {
		return true
	}
	b.reply(ctx, msg, msgNotAllowed)
	return false
}

// configureChat ensures the chat row exists and applies one mutation.
func (b *Bot) configureChat(ctx context.Context, msg *telegram.Message, fn func(chatID int64) error) error {
	if _, err := b.storage.GetOrCreateChat(ctx, msg.Chat.ID); err != nil {
		b.logger.Error("chat config load failed", "error", err, "chat_id", msg.Chat.ID)
		b.reply(ctx, msg, "Settings are temporarily unavailable")
		return err
	}
	if err := fn(msg.Chat.ID); err != nil {
		b.logger.Error("chat config update failed", "error", err, "chat_id", msg.Chat.ID)
		b.reply(ctx, msg, "Settings are temporarily unavailable")
		return err
	}
	return nil
}

func (b *Bot) handleBan(ctx context.Context, msg *telegram.Message, args []string) {
	if msg.From == nil || !b.isAdmin(msg.From.ID) {
		return
	}
	chatID, ok := parseChatID(args)
	if !ok {
		b.reply(ctx, msg, "Usage: /ban {chatId}")
		return
	}

	bannedAt, already, err := b.storage.Ban(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		b.reply(ctx, msg, fmt.Sprintf("Chat %d not found.", chatID))
		return
	}
	if err != nil {
		b.logger.Error("ban failed", "error", err, "target", chatID)
		b.reply(ctx, msg, "Ban failed")
		return
	}

	if err := b.limiter.MarkChat(ctx, chatID, media.ChatBanned); err != nil {
		b.logger.Warn("chat state cache update failed", "error", err, "chat_id", chatID)
	}

	if already {
		b.reply(ctx, msg, fmt.Sprintf("Chat %d is already banned.", chatID))
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Chat %d has been banned at %s.", chatID, bannedAt.Format(time.DateTime)))

	// Courtesy notice; the chat may have blocked the bot already.
	if _, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: "This chat was banned!"}); err != nil {
		b.logger.Debug("ban notice failed", "error", err, "chat_id", chatID)
	}
}

func (b *Bot) handleUnban(ctx context.Context, msg *telegram.Message, args []string) {
	if msg.From == nil || !b.isAdmin(msg.From.ID) {
		return
	}
	chatID, ok := parseChatID(args)
	if !ok {
		b.reply(ctx, msg, "Usage: /unban {chatId}")
		return
	}

	wasBanned, err := b.storage.Unban(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		b.reply(ctx, msg, fmt.Sprintf("Chat %d not found.", chatID))
		return
	}
	if err != nil {
		b.logger.Error("unban failed", "error", err, "target", chatID)
		b.reply(ctx, msg, "Unban failed")
		return
	}

	if err := b.limiter.ClearChat(ctx, chatID); err != nil {
		b.logger.Warn("chat state cache clear failed", "error", err, "chat_id", chatID)
	}

	if !wasBanned {
		b.reply(ctx, msg, fmt.Sprintf("Chat %d is not banned.", chatID))
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Chat %d has been unbanned.", chatID))

	if _, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: "This chat was unbanned!"}); err != nil {
		b.logger.Debug("unban notice failed", "error", err, "chat_id", chatID)
	}
}

func (b *Bot) handleStats(ctx context.Context, msg *telegram.Message, args []string) {
	if msg.From == nil {
		return
	}

	chatID := msg.Chat.ID
	if b.isAdmin(msg.From.ID) {
		if id, ok := parseChatID(args); ok {
			chatID = id
		}
	}

	chat, err := b.storage.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		b.reply(ctx, msg, "Chat not found!")
		return
	}
	if err != nil {
		b.logger.Error("stats failed", "error", err, "target", chatID)
		return
	}

	st, err := b.storage.ChatStats(ctx, chatID)
	if err != nil {
		b.logger.Error("stats failed", "error", err, "target", chatID)
		return
	}

	b.replyHTML(ctx, msg, formatChatStats(chatID, chat, st))
}

func (b *Bot) handleChats(ctx context.Context, msg *telegram.Message, args []string) {
	if msg.From == nil || !b.isAdmin(msg.From.ID) {
		return
	}

	byUsage := len(args) > 0 && args[0] == "usage"
	list, err := b.storage.ListChats(ctx, byUsage)
	if err != nil {
		b.logger.Error("chat list failed", "error", err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, msg, "No chats found!")
		return
	}

	for _, part := range chunkLines(formatChatList(list), maxMessageLength) {
		b.replyHTML(ctx, msg, part)
	}
}

func parseChatID(args []string) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) reply(ctx context.Context, msg *telegram.Message, text string) {
	_, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: &telegram.ReplyParameters{MessageID: msg.MessageID},
		MessageThreadID: msg.MessageThreadID,
	})
	if err != nil {
		b.logger.Warn("reply failed", "error", err, "chat_id", msg.Chat.ID)
	}
}

func (b *Bot) replyHTML(ctx context.Context, msg *telegram.Message, text string) {
	_, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ParseMode:       "HTML",
		MessageThreadID: msg.MessageThreadID,
	})
	if err != nil {
		b.logger.Warn("reply failed", "error", err, "chat_id", msg.Chat.ID)
	}
}

func (b *Bot) startMessage() string {
	orUnlimited := func(n int, suffix string) string {
		if n <= 0 {
			return "unlimited"
		}
		return strconv.Itoa(n) + suffix
	}
	sizeLimit := "unlimited"
	if b.limits.MaxFileSize > 0 {
		sizeLimit = formatBytes(b.limits.MaxFileSize)
	}

	exts := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	return "Hello! I am a Telegram bot for converting voice, audio, and video messages into text. " +
		"Simply send them to me privately, or add me to a group, and I will automatically transcribe audio.\n\n" +
		"You can also use the following commands:\n" +
		"<b>/transcribe</b> - Transcribe the replied-to audio or video message\n" +
		"<b>/translate</b> - Translate the replied-to message to English\n" +
		"<b>/language</b>, <b>/format</b>, <b>/mode</b>, <b>/logging</b> - Chat settings\n\n" +
		fmt.Sprintf("Maximum file size: <b>%s</b>\n", sizeLimit) +
		fmt.Sprintf("Maximum audio length: <b>%s</b>\n\n", orUnlimited(b.limits.MaxDuration, " seconds")) +
		"<b>Rate limits:</b>\n" +
		fmt.Sprintf("Requests from one user: <b>%s</b>\n", orUnlimited(b.limits.UserLimit, "")) +
		fmt.Sprintf("User requests window: <b>%s</b>\n", orUnlimited(b.limits.UserWindow, " seconds")) +
		fmt.Sprintf("Global request limit: <b>%s</b>\n", orUnlimited(b.limits.GlobalLimit, "")) +
		fmt.Sprintf("Global requests window: <b>%s</b>\n\n", orUnlimited(b.limits.GlobalWindow, " seconds")) +
		"<b>Supported file types:</b>\n" + strings.Join(exts, ", ")
}

func formatChatStats(chatID int64, chat *store.ChatConfig, st *store.RequestStats) string {
	formatTime := func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format(time.DateTime)
	}

	avgPerDay := "n/a"
	if st.FirstUsage != nil && st.LastUsage != nil && st.UsageCount > 0 {
		days := int(st.LastUsage.Sub(*st.FirstUsage).Hours()/24) + 1
		if days < 1 {
			days = 1
		}
		avgPerDay = fmt.Sprintf("%.2f", float64(st.UsageCount)/float64(days))
	}

	language := "not set"
	if chat.Language != "" {
		language = languageCodes[chat.Language]
	}
	banned := "no"
	if chat.BannedAt != nil {
		banned = "<b>yes</b>, " + chat.BannedAt.Format(time.DateTime)
	}

	lines := []string{
		fmt.Sprintf("📊 <b>Statistics for chat:</b> <code>%d</code>", chatID),
		"",
		fmt.Sprintf("<b>Total requests:</b> %d", st.UsageCount),
		fmt.Sprintf("<b>Unique users:</b> %d", st.UsersCount),
		fmt.Sprintf("<b>First usage:</b> %s", formatTime(st.FirstUsage)),
		fmt.Sprintf("<b>Last usage:</b> %s", formatTime(st.LastUsage)),
		fmt.Sprintf("<b>Average requests per day:</b> %s", avgPerDay),
		fmt.Sprintf("<b>Errors:</b> %d", st.ErrorCount),
		fmt.Sprintf("<b>Forwarded messages:</b> %d", st.ForwardedCount),
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
		"",
		fmt.Sprintf("<b>Average duration:</b> %.2f sec", st.AvgDuration),
		fmt.Sprintf("<b>Average file size:</b> %s", formatBytes(int64(st.AvgFileSize))),
		fmt.Sprintf("<b>Average response length:</b> %.1f chars", st.AvgResponseLength),
		fmt.Sprintf("<b>Average request time:</b> %.1f ms", st.AvgTotalMillis),
		"",
		"<b>Chat settings:</b>",
		"- Language: " + language,
		"- Format style: " + string(chat.FormatStyle),
		"- Default mode: " + string(chat.DefaultMode),
		"- Banned: " + banned,
		"- Created: " + chat.CreatedAt.Format(time.DateTime),
		"- Last edited: " + chat.EditedAt.Format(time.DateTime),
	}
	return strings.Join(lines, "\n")
}

func formatChatList(list []store.ChatSummary) []string {
	lines := make([]string, 0, len(list))
	for _, c := range list {
		bannedIcon := "✔️"
		if c.Banned {
			bannedIcon = "🚫"
		}
		loggingIcon := "📝"
		if !c.LoggingEnabled {
			loggingIcon = "🔏"
		}
		lastUsage := "never"
		if c.LastUsage != nil {
			lastUsage = c.LastUsage.Format(time.DateTime)
		}

		lines = append(lines, fmt.Sprintf(
			"%s %s <code>%d</code>\nRequests: %d\nLast usage: %s\nJoined on: %s\n",
			bannedIcon, loggingIcon, c.ChatID, c.UsageCount, lastUsage,
			c.CreatedAt.Format(time.DateTime)))
	}
	return lines
}

// chunkLines joins lines into messages that each stay under the Telegram
// length limit, never splitting one line across messages. A single line
// that exceeds the limit on its own is split the same way long
// transcripts are.
func chunkLines(lines []string, limit int) []string {
	var messages []string
	current := ""
	for _, line := range lines {
		if utf16Len(line) > limit {
			if current != "" {
				messages = append(messages, current)
				current = ""
			}
			messages = append(messages, splitMessage(line, limit)...)
			continue
		}
		joined := current + "\n" + line
		if current == "" {
			joined = line
		}
		if utf16Len(joined) > limit && current != "" {
			messages = append(messages, current)
			current = line
			continue
		}
		current = joined
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}
