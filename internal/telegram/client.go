// Package telegram implements a thin HTTP client for the Telegram Bot API
// together with the polling and webhook update receivers.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const (
	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20 // prevent unbounded reads from API responses
)

// Client is a thin HTTP wrapper around the Telegram Bot API. All calls go
// through a shared Throttle so the process never exceeds the provider's
// outbound rate expectations.
type Client struct {
	token    string
	baseURL  string
	http     *http.Client
	throttle *Throttle
}

// NewClient creates a new Telegram Bot API client.
func NewClient(token, baseURL string, throttle *Throttle) *Client {
	if throttle == nil {
		throttle = NewThrottle(0)
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		throttle: throttle,
	}
}

// do sends a JSON POST request to the given Bot API method and decodes the
// response. It handles 429 rate limiting with Retry-After (max 3 retries,
// exponential backoff).
func do[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	var result *T
	err := c.throttle.Do(ctx, func() error {
		r, err := doLocked[T](ctx, c, method, payload)
		result = r
		return err
	})
	return result, err
}

func doLocked[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	backoff := initialBackoff

	for attempt := range maxRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, fmt.Errorf("telegram: create %s request: %w", method, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Wrap without the raw error string in the message to avoid
			// leaking the token-bearing URL. The original error is still
			// available via Unwrap.
			return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
		}

		// Handle rate limiting with retry.
		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			var apiResp APIResponse[json.RawMessage]
			if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				backoff = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2

			// Re-create body reader for retry.
			if payload != nil {
				data, _ := json.Marshal(payload)
				body = bytes.NewReader(data)
			}
			continue
		}

		return decodeResponse[T](respBody, method)
	}

	return nil, fmt.Errorf("telegram: %s: max retries exceeded", method)
}

func decodeResponse[T any](respBody []byte, method string) (*T, error) {
	var apiResp APIResponse[T]
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
	}

	if !apiResp.OK {
		apiErr := &APIError{
			Code:        apiResp.ErrorCode,
			Description: apiResp.Description,
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		return nil, apiErr
	}

	return &apiResp.Result, nil
}

// GetUpdatesRequest is the request body for the getUpdates method.
type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SetWebhookRequest is the request body for the setWebhook method.
type SetWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
	MaxConnections int      `json:"max_connections,omitempty"`
}

// SendMessageRequest is the request body for the sendMessage method.
type SendMessageRequest struct {
	ChatID          int64            `json:"chat_id"`
	Text            string           `json:"text"`
	ParseMode       string           `json:"parse_mode,omitempty"`
	Entities        []MessageEntity  `json:"entities,omitempty"`
	ReplyParameters *ReplyParameters `json:"reply_parameters,omitempty"`
	MessageThreadID int              `json:"message_thread_id,omitempty"`
}

// ForwardMessageRequest is the request body for the forwardMessage method.
type ForwardMessageRequest struct {
	ChatID          int64 `json:"chat_id"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageID       int   `json:"message_id"`
	MessageThreadID int   `json:"message_thread_id,omitempty"`
}

// CopyMessagesRequest is the request body for the copyMessages method.
type CopyMessagesRequest struct {
	ChatID          int64 `json:"chat_id"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageIDs      []int `json:"message_ids"`
	MessageThreadID int   `json:"message_thread_id,omitempty"`
}

// SendMediaRequest is the request body shared by the sendVoice, sendAudio,
// sendVideo, sendVideoNote, sendDocument, and sendPhoto methods when the
// media is referenced by its provider file id.
type SendMediaRequest struct {
	ChatID          int64  `json:"chat_id"`
	Voice           string `json:"voice,omitempty"`
	Audio           string `json:"audio,omitempty"`
	Video           string `json:"video,omitempty"`
	VideoNote       string `json:"video_note,omitempty"`
	Document        string `json:"document,omitempty"`
	Photo           string `json:"photo,omitempty"`
	Caption         string `json:"caption,omitempty"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
}

// getFileRequest is the request body for the getFile method.
type getFileRequest struct {
	FileID string `json:"file_id"`
}

// MessageIDResult is the per-message result of the copyMessages method.
type MessageIDResult struct {
	MessageID int `json:"message_id"`
}

// GetMe returns the bot's user information.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// GetUpdates fetches incoming updates using long polling. It bypasses the
// outbound throttle: long polls hold the lane for up to the poll timeout
// and are not subject to send-rate limits.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	result, err := doLocked[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SetWebhook configures the webhook URL for receiving updates.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := do[bool](ctx, c, "setWebhook", req)
	return err
}

// DeleteWebhook removes the current webhook integration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := do[bool](ctx, c, "deleteWebhook", nil)
	return err
}

// SendMessage sends a text message to the specified chat.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return do[Message](ctx, c, "sendMessage", req)
}

// ForwardMessage forwards an existing message to another chat.
func (c *Client) ForwardMessage(ctx context.Context, req ForwardMessageRequest) (*Message, error) {
	return do[Message](ctx, c, "forwardMessage", req)
}

// CopyMessages copies a batch of messages to another chat without the
// forward header.
func (c *Client) CopyMessages(ctx context.Context, req CopyMessagesRequest) ([]MessageIDResult, error) {
	result, err := do[[]MessageIDResult](ctx, c, "copyMessages", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SendMedia re-sends media referenced by file id using the Bot API method
// appropriate for the media kind (e.g. "sendVoice").
func (c *Client) SendMedia(ctx context.Context, method string, req SendMediaRequest) (*Message, error) {
	return do[Message](ctx, c, method, req)
}

// SendChatAction sends a chat action (e.g., "typing") to the specified chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := do[bool](ctx, c, "sendChatAction", struct {
		ChatID int64  `json:"chat_id"`
		Action string `json:"action"`
	}{chatID, action})
	return err
}

// GetFile retrieves basic info about a file and prepares it for downloading.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	return do[File](ctx, c, "getFile", getFileRequest{FileID: fileID})
}

// FileURL returns the download URL for a file path returned by GetFile.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
}

// DownloadFile fetches the file contents for a path returned by GetFile.
// Downloads do not count against the Bot API send quota, so they bypass
// the throttle and may run in parallel across requests.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(filePath), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: create download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download %s failed: %w", filePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download %s: unexpected status %d", filePath, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("telegram: read download %s: %w", filePath, err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("telegram: download %s exceeds %d bytes", filePath, maxResponseBytes)
	}
	return data, nil
}

// UploadDocument uploads raw bytes as a document via multipart form data.
// Used for file-style transcription delivery and as the last-resort relay
// fallback when a file id can no longer be re-sent.
func (c *Client) UploadDocument(ctx context.Context, chatID int64, threadID int, replyTo int, filename string, data []byte) (*Message, error) {
	var result *Message
	err := c.throttle.Do(ctx, func() error {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
			return fmt.Errorf("telegram: write chat_id field: %w", err)
		}
		if threadID != 0 {
			if err := w.WriteField("message_thread_id", strconv.Itoa(threadID)); err != nil {
				return fmt.Errorf("telegram: write message_thread_id field: %w", err)
			}
		}
		if replyTo != 0 {
			params, err := json.Marshal(ReplyParameters{MessageID: replyTo})
			if err != nil {
				return fmt.Errorf("telegram: marshal reply_parameters: %w", err)
			}
			if err := w.WriteField("reply_parameters", string(params)); err != nil {
				return fmt.Errorf("telegram: write reply_parameters field: %w", err)
			}
		}

		part, err := w.CreateFormFile("document", filename)
		if err != nil {
			return fmt.Errorf("telegram: create document part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("telegram: write document part: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("telegram: close multipart writer: %w", err)
		}

		url := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
		if err != nil {
			return fmt.Errorf("telegram: create sendDocument request: %w", err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("telegram: sendDocument request failed: %w", err)
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("telegram: read sendDocument response: %w", err)
		}

		msg, err := decodeResponse[Message](respBody, "sendDocument")
		if err != nil {
			return err
		}
		result = msg
		return nil
	})
	return result, err
}
