// Package ratelimit admits or denies media requests based on per-user and
// global sliding windows kept in Redis, and short-circuits for chats that
// have been disabled or banned. Admission counting and the chat-state check
// run in a single Lua script so a denied request never consumes quota for
// a banned chat.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voclab/voxgram/pkg/media"
)

// chatStateTTL bounds how long a ban or disable flag survives without the
// durable store re-asserting it on the next request.
const chatStateTTL = 24 * time.Hour

// admitScript increments the user and global windows and reads the chat
// state in one round trip. When the chat is disabled or banned it returns
// before touching either counter. Run sends EVALSHA and falls back to
// EVAL only when the server has not cached the script yet.
var admitScript = redis.NewScript(`
local userKey = KEYS[1]
local globalKey = KEYS[2]
local chatKey = KEYS[3]

local userLimit = tonumber(ARGV[1])
local globalLimit = tonumber(ARGV[2])
local userWindow = tonumber(ARGV[3])
local globalWindow = tonumber(ARGV[4])

local userCount = 0
local globalCount = 0
local chatState = redis.call("GET", chatKey)

if chatState == "0" or chatState == "1" then
  return {userCount, globalCount, chatState}
end

if userLimit > 0 and userWindow > 0 then
  userCount = redis.call("INCR", userKey)
  if userCount == 1 then
    redis.call("EXPIRE", userKey, userWindow)
  end
end

if globalLimit > 0 and globalWindow > 0 then
  globalCount = redis.call("INCR", globalKey)
  if globalCount == 1 then
    redis.call("EXPIRE", globalKey, globalWindow)
  end
end

return {userCount, globalCount, chatState}
`)

// Cache is the subset of redis.Client the limiter uses. Narrowed so tests
// can substitute a fake without a running Redis. Scripter carries the
// EVALSHA machinery the admission script runs through.
type Cache interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Reason explains why a request was denied.
type Reason string

const (
	ReasonUserLimit    Reason = "user_limit_exceeded"
	ReasonGlobalLimit  Reason = "global_limit_exceeded"
	ReasonChatDisabled Reason = "chat_disabled"
	ReasonChatBanned   Reason = "chat_banned"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed     bool
	Reason      Reason
	UserCount   int64
	GlobalCount int64
}

// Limits configures the admission windows. A zero limit or window disables
// the corresponding check.
type Limits struct {
	UserLimit    int
	UserWindow   time.Duration
	GlobalLimit  int
	GlobalWindow time.Duration
}

func (l Limits) userActive() bool   { return l.UserLimit > 0 && l.UserWindow > 0 }
func (l Limits) globalActive() bool { return l.GlobalLimit > 0 && l.GlobalWindow > 0 }

// Limiter performs admission checks and manages chat-state flags.
type Limiter struct {
	cache  Cache
	limits Limits
	logger *slog.Logger
}

// NewLimiter creates a limiter backed by the given cache. A nil cache
// disables admission checks entirely (deployments without Redis).
func NewLimiter(cache Cache, limits Limits, logger *slog.Logger) *Limiter {
	return &Limiter{
		cache:  cache,
		limits: limits,
		logger: logger,
	}
}

func userKey(userID int64) string { return fmt.Sprintf("rate:user:%d", userID) }
func chatKey(chatID int64) string { return fmt.Sprintf("chat:%d", chatID) }
func globalKey() string           { return "rate:global" }

func stateReason(s string) (Reason, bool) {
	switch s {
	case strconv.Itoa(int(media.ChatDisabled)):
		return ReasonChatDisabled, true
	case strconv.Itoa(int(media.ChatBanned)):
		return ReasonChatBanned, true
	}
	return "", false
}

// Admit decides whether one media request from userID in chatID may proceed.
// A cache failure degrades to allowing the request: losing rate limiting
// briefly is preferable to refusing all transcriptions while Redis is down.
func (l *Limiter) Admit(ctx context.Context, chatID, userID int64) Decision {
	if l.cache == nil {
		return Decision{Allowed: true}
	}
	if !l.limits.userActive() && !l.limits.globalActive() {
		return l.admitStateOnly(ctx, chatID)
	}

	res, err := admitScript.Run(ctx, l.cache,
		[]string{userKey(userID), globalKey(), chatKey(chatID)},
		l.limits.UserLimit,
		l.limits.GlobalLimit,
		int(l.limits.UserWindow.Seconds()),
		int(l.limits.GlobalWindow.Seconds()),
	).Result()
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", "error", err, "chat_id", chatID, "user_id", userID)
		return Decision{Allowed: true}
	}

	userCount, globalCount, state, err := parseAdmitResult(res)
	if err != nil {
		l.logger.Warn("rate limit result malformed, allowing request", "error", err)
		return Decision{Allowed: true}
	}

	d := Decision{UserCount: userCount, GlobalCount: globalCount}
	if reason, blocked := stateReason(state); blocked {
		d.Reason = reason
		return d
	}
	if l.limits.userActive() && userCount > int64(l.limits.UserLimit) {
		d.Reason = ReasonUserLimit
		return d
	}
	if l.limits.globalActive() && globalCount > int64(l.limits.GlobalLimit) {
		d.Reason = ReasonGlobalLimit
		return d
	}
	d.Allowed = true
	return d
}

// admitStateOnly covers deployments that run without rate limits: only the
// disabled/banned flag is consulted.
func (l *Limiter) admitStateOnly(ctx context.Context, chatID int64) Decision {
	state, err := l.cache.Get(ctx, chatKey(chatID)).Result()
	if err == redis.Nil {
		return Decision{Allowed: true}
	}
	if err != nil {
		l.logger.Warn("chat state check failed, allowing request", "error", err, "chat_id", chatID)
		return Decision{Allowed: true}
	}
	if reason, blocked := stateReason(state); blocked {
		return Decision{Reason: reason}
	}
	return Decision{Allowed: true}
}

func parseAdmitResult(res interface{}) (userCount, globalCount int64, state string, err error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return 0, 0, "", fmt.Errorf("ratelimit: unexpected script result %T", res)
	}
	userCount, ok = vals[0].(int64)
	if !ok {
		return 0, 0, "", fmt.Errorf("ratelimit: unexpected user count %T", vals[0])
	}
	globalCount, ok = vals[1].(int64)
	if !ok {
		return 0, 0, "", fmt.Errorf("ratelimit: unexpected global count %T", vals[1])
	}
	if len(vals) > 2 && vals[2] != nil {
		state, _ = vals[2].(string)
	}
	return userCount, globalCount, state, nil
}

// MarkChat flags a chat as disabled or banned. The flag is what the Lua
// script short-circuits on; the durable store keeps the authoritative copy
// and re-marks the cache on expiry.
func (l *Limiter) MarkChat(ctx context.Context, chatID int64, state media.ChatState) error {
	if l.cache == nil {
		return nil
	}
	if err := l.cache.Set(ctx, chatKey(chatID), int(state), chatStateTTL).Err(); err != nil {
		return fmt.Errorf("ratelimit: mark chat %d: %w", chatID, err)
	}
	return nil
}

// ClearChat removes a chat's disabled/banned flag.
func (l *Limiter) ClearChat(ctx context.Context, chatID int64) error {
	if l.cache == nil {
		return nil
	}
	if err := l.cache.Del(ctx, chatKey(chatID)).Err(); err != nil {
		return fmt.Errorf("ratelimit: clear chat %d: %w", chatID, err)
	}
	return nil
}
