package transcribe

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voclab/voxgram/pkg/media"
)

type capturedRequest struct {
	path     string
	auth     string
	fields   map[string]string
	fileName string
	fileData string
}

func captureSpeechAPI(t *testing.T, response string, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			fields: map[string]string{},
		}

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Fatalf("parse content type: %v", err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read part: %v", err)
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				c.fileName = part.FileName()
				c.fileData = string(data)
			} else {
				c.fields[part.FormName()] = string(data)
			}
		}
		captured = append(captured, c)

		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func testConfig(baseURL string) Config {
	return Config{
		APIKey:           "gsk_test",
		BaseURL:          baseURL,
		Model:            "whisper-large-v3-turbo",
		TranslationModel: "whisper-large-v3",
	}
}

func TestTranscribe(t *testing.T) {
	srv, captured := captureSpeechAPI(t, `{"text":"  hello there  "}`, http.StatusOK)
	c := NewClient(testConfig(srv.URL))

	text, err := c.Transcribe(context.Background(),
		media.File{Name: "voice.ogg", Data: []byte("OggS")}, media.ModeTranscribe, "en")
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want trimmed %q", text, "hello there")
	}

	req := (*captured)[0]
	if req.path != "/audio/transcriptions" {
		t.Errorf("path = %q, want /audio/transcriptions", req.path)
	}
	if req.auth != "Bearer gsk_test" {
		t.Errorf("auth = %q", req.auth)
	}
	if req.fields["model"] != "whisper-large-v3-turbo" {
		t.Errorf("model = %q", req.fields["model"])
	}
	if req.fields["language"] != "en" {
		t.Errorf("language = %q, want en", req.fields["language"])
	}
	if req.fileName != "voice.ogg" || req.fileData != "OggS" {
		t.Errorf("file = %q %q", req.fileName, req.fileData)
	}
}

func TestTranslate_IgnoresLanguageHint(t *testing.T) {
	srv, captured := captureSpeechAPI(t, `{"text":"translated"}`, http.StatusOK)
	c := NewClient(testConfig(srv.URL))

	text, err := c.Transcribe(context.Background(),
		media.File{Name: "voice.ogg", Data: []byte("OggS")}, media.ModeTranslate, "de")
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if text != "translated" {
		t.Errorf("text = %q", text)
	}

	req := (*captured)[0]
	if req.path != "/audio/translations" {
		t.Errorf("path = %q, want /audio/translations", req.path)
	}
	if req.fields["model"] != "whisper-large-v3" {
		t.Errorf("model = %q, want whisper-large-v3", req.fields["model"])
	}
	if _, ok := req.fields["language"]; ok {
		t.Error("translation must not send a language field")
	}
}

func TestTranscribe_NoLanguageConfigured(t *testing.T) {
	srv, captured := captureSpeechAPI(t, `{"text":"x"}`, http.StatusOK)
	c := NewClient(testConfig(srv.URL))

	if _, err := c.Transcribe(context.Background(),
		media.File{Name: "a.mp3", Data: []byte("ID3")}, media.ModeTranscribe, ""); err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if _, ok := (*captured)[0].fields["language"]; ok {
		t.Error("empty language hint must be omitted")
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv, _ := captureSpeechAPI(t, `{"error":"invalid key"}`, http.StatusUnauthorized)
	c := NewClient(testConfig(srv.URL))

	_, err := c.Transcribe(context.Background(),
		media.File{Name: "a.ogg", Data: []byte("x")}, media.ModeTranscribe, "")
	if err == nil {
		t.Fatal("expected error for 401")
	}
}
