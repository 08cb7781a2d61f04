package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func newTestClient(url string) *Client {
	return NewClient("TEST_TOKEN", url, NewThrottle(0))
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/getMe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		writeJSON(t, w, APIResponse[User]{
			OK: true,
			Result: User{
				ID:       123,
				IsBot:    true,
				Username: "voxgram_bot",
			},
		})
	}))
	defer srv.Close()

	user, err := newTestClient(srv.URL).GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error: %v", err)
	}
	if user.ID != 123 || !user.IsBot || user.Username != "voxgram_bot" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestSendMessage_ReplyAndEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ChatID != 42 {
			t.Errorf("ChatID = %d, want 42", req.ChatID)
		}
		if req.ReplyParameters == nil || req.ReplyParameters.MessageID != 7 {
			t.Errorf("ReplyParameters = %+v, want message_id 7", req.ReplyParameters)
		}
		if len(req.Entities) != 1 || req.Entities[0].Type != "blockquote" {
			t.Errorf("Entities = %+v, want one blockquote", req.Entities)
		}

		writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 99}})
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).SendMessage(context.Background(), SendMessageRequest{
		ChatID:          42,
		Text:            "hello",
		Entities:        []MessageEntity{{Type: "blockquote", Offset: 0, Length: 5}},
		ReplyParameters: &ReplyParameters{MessageID: 7},
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.MessageID != 99 {
		t.Errorf("MessageID = %d, want 99", msg.MessageID)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, APIResponse[Message]{
			OK:          false,
			ErrorCode:   403,
			Description: "Forbidden: bot was blocked by the user",
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 403 {
		t.Errorf("Code = %d, want 403", apiErr.Code)
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/botTEST_TOKEN/voice/file_1.oga" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("OggS fake audio"))
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL).DownloadFile(context.Background(), "voice/file_1.oga")
	if err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	if string(data) != "OggS fake audio" {
		t.Errorf("data = %q", data)
	}
}

func TestDownloadFile_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).DownloadFile(context.Background(), "gone")
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestUploadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/sendDocument" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Fatalf("Content-Type = %q (%v)", r.Header.Get("Content-Type"), err)
		}

		mr := multipart.NewReader(r.Body, params["boundary"])
		fields := map[string]string{}
		var fileContent, fileName string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read part: %v", err)
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "document" {
				fileContent = string(data)
				fileName = part.FileName()
			} else {
				fields[part.FormName()] = string(data)
			}
		}

		if fields["chat_id"] != "42" {
			t.Errorf("chat_id = %q, want 42", fields["chat_id"])
		}
		if fields["reply_parameters"] != `{"message_id":7}` {
			t.Errorf("reply_parameters = %q", fields["reply_parameters"])
		}
		if fileName != "1-7.txt" {
			t.Errorf("filename = %q, want 1-7.txt", fileName)
		}
		if fileContent != "the transcription" {
			t.Errorf("file content = %q", fileContent)
		}

		writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 55}})
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).UploadDocument(context.Background(), 42, 0, 7, "1-7.txt", []byte("the transcription"))
	if err != nil {
		t.Fatalf("UploadDocument() error: %v", err)
	}
	if msg.MessageID != 55 {
		t.Errorf("MessageID = %d, want 55", msg.MessageID)
	}
}

func TestRetryAfterRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, APIResponse[Message]{
				OK:         false,
				ErrorCode:  429,
				Parameters: &ResponseParameters{RetryAfter: 0},
			})
			return
		}
		writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 5}})
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "retry me"})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.MessageID != 5 {
		t.Errorf("MessageID = %d, want 5", msg.MessageID)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
