package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) *config.AgentConfig {
	return &config.AgentConfig{
		BaseURL:            baseURL,
		Model:              "gpt-4",
		TranscriptionModel: "whisper-1",
		Language:           "fr",
		MaxTokens:          1500,
		Timeout:            "5s",
		APIKey:             "sk-config",
	}
}

type capturedRequest struct {
	path         string
	auth         string
	organization string
	project      string
	body         []byte
	form         map[string]string
}

func newServer(t *testing.T, status int, calls *atomic.Int32, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.organization = r.Header.Get("OpenAI-Organization")
		captured.project = r.Header.Get("OpenAI-Project")

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			r.ParseMultipartForm(1 << 20)
			captured.form = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				captured.form[k] = v[0]
			}
		} else {
			captured.body, _ = io.ReadAll(r.Body)
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "denied", "type": "invalid_request_error"}}`))
			return
		}

		switch r.URL.Path {
		case "/chat/completions":
			w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"model": "gpt-4",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Voici: {\"note_finale\": 15.5}"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
			}`))
		case "/audio/transcriptions":
			w.Write([]byte(`{"text": "Je prends les constantes du patient."}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	var calls atomic.Int32
	var captured capturedRequest
	srv := newServer(t, http.StatusOK, &calls, &captured)

	client := agent.New(testConfig(srv.URL), srv.Client(), discardLogger())

	raw, err := client.Complete(context.Background(), agent.Credentials{}, "évalue")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if raw != `Voici: {"note_finale": 15.5}` {
		t.Errorf("raw = %q, want the uninterpreted message content", raw)
	}
	if captured.path != "/chat/completions" {
		t.Errorf("path = %s", captured.path)
	}
	if captured.auth != "Bearer sk-config" {
		t.Errorf("authorization = %q, want configured key", captured.auth)
	}

	var body struct {
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		MaxTokens   int      `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(captured.body, &body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if body.Model != "gpt-4" {
		t.Errorf("model = %s, want gpt-4", body.Model)
	}
	if body.Temperature == nil || *body.Temperature > 1e-30 {
		t.Errorf("temperature = %v, want effectively zero", body.Temperature)
	}
	if body.MaxTokens != 1500 {
		t.Errorf("max_tokens = %d, want 1500", body.MaxTokens)
	}
	if len(body.Messages) != 1 || body.Messages[0].Content != "évalue" {
		t.Errorf("messages = %+v", body.Messages)
	}
}

func TestCompleteRequestCredentials(t *testing.T) {
	var calls atomic.Int32
	var captured capturedRequest
	srv := newServer(t, http.StatusOK, &calls, &captured)

	client := agent.New(testConfig(srv.URL), srv.Client(), discardLogger())

	creds := agent.Credentials{APIKey: "sk-request", Organization: "org-1", Project: "proj_1"}
	if _, err := client.Complete(context.Background(), creds, "p"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if captured.auth != "Bearer sk-request" {
		t.Errorf("authorization = %q, want request key", captured.auth)
	}
	if captured.organization != "org-1" {
		t.Errorf("organization = %q, want org-1", captured.organization)
	}
	if captured.project != "proj_1" {
		t.Errorf("project = %q, want proj_1", captured.project)
	}
}

func TestCompleteFailureIsNotRetried(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{"auth rejected", http.StatusUnauthorized, http.StatusUnauthorized},
		{"rate limited", http.StatusTooManyRequests, http.StatusTooManyRequests},
		{"server error", http.StatusInternalServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			var captured capturedRequest
			srv := newServer(t, tt.status, &calls, &captured)

			client := agent.New(testConfig(srv.URL), srv.Client(), discardLogger())

			_, err := client.Complete(context.Background(), agent.Credentials{}, "p")

			var sue *agent.ServiceUnavailableError
			if !errors.As(err, &sue) {
				t.Fatalf("error = %v, want ServiceUnavailableError", err)
			}
			if !errors.Is(err, agent.ErrServiceUnavailable) {
				t.Error("error should match ErrServiceUnavailable")
			}
			if sue.Service != agent.ServiceReasoning {
				t.Errorf("service = %s, want reasoning", sue.Service)
			}
			if sue.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", sue.StatusCode, tt.wantStatus)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("calls = %d, want exactly 1", n)
			}
			if agent.MapHTTPStatus(err) != http.StatusServiceUnavailable {
				t.Errorf("MapHTTPStatus = %d, want 503", agent.MapHTTPStatus(err))
			}
		})
	}
}

func TestCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := agent.New(testConfig(url), nil, discardLogger())

	_, err := client.Complete(context.Background(), agent.Credentials{}, "p")
	if !errors.Is(err, agent.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
}

func TestCompleteMissingCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = ""

	client := agent.New(cfg, nil, discardLogger())

	_, err := client.Complete(context.Background(), agent.Credentials{}, "p")
	if !errors.Is(err, agent.ErrMissingCredentials) {
		t.Fatalf("error = %v, want ErrMissingCredentials", err)
	}
	if !errors.Is(err, agent.ErrServiceUnavailable) {
		t.Error("missing credentials should surface as service unavailable")
	}
}

func TestTranscribe(t *testing.T) {
	var calls atomic.Int32
	var captured capturedRequest
	srv := newServer(t, http.StatusOK, &calls, &captured)

	client := agent.New(testConfig(srv.URL), srv.Client(), discardLogger())

	text, err := client.Transcribe(context.Background(), agent.Credentials{}, agent.Audio{
		Filename: "take.webm",
		Data:     []byte("RIFF....WAVE"),
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if text != "Je prends les constantes du patient." {
		t.Errorf("text = %q", text)
	}
	if captured.path != "/audio/transcriptions" {
		t.Errorf("path = %s", captured.path)
	}
	if captured.form["model"] != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", captured.form["model"])
	}
	if captured.form["language"] != "fr" {
		t.Errorf("language = %q, want fr", captured.form["language"])
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	client := agent.New(testConfig("http://127.0.0.1:1"), nil, discardLogger())

	_, err := client.Transcribe(context.Background(), agent.Credentials{}, agent.Audio{})
	if !errors.Is(err, agent.ErrEmptyAudio) {
		t.Fatalf("error = %v, want ErrEmptyAudio", err)
	}
	if agent.MapHTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("MapHTTPStatus = %d, want 400", agent.MapHTTPStatus(err))
	}
}

func TestCredentialsFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(agent.HeaderAPIKey, "sk-h")
	h.Set(agent.HeaderOrganization, "org-h")
	h.Set(agent.HeaderProject, "proj-h")

	creds := agent.CredentialsFromHeaders(h)
	if creds.APIKey != "sk-h" || creds.Organization != "org-h" || creds.Project != "proj-h" {
		t.Errorf("creds = %+v", creds)
	}

	fallback := agent.Credentials{APIKey: "sk-f", Organization: "org-f"}
	if got := (agent.Credentials{}).Or(fallback); got != fallback {
		t.Errorf("empty credentials should fall back, got %+v", got)
	}
	if got := creds.Or(fallback); got != creds {
		t.Errorf("supplied credentials should win, got %+v", got)
	}
}
