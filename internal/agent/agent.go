// Package agent invokes the external reasoning and speech-to-text services.
// It returns raw service output and never interprets or retries it.
package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/pkg/formatting"
)

// temperature pins sampling for reproducible grading. The client drops a
// literal zero from the request, so the smallest positive float stands in for it.
const temperature = math.SmallestNonzeroFloat32

// Audio is a finished recording submitted for transcription.
type Audio struct {
	Filename string
	Data     []byte
	Language string
}

// Client invokes the model services on behalf of one request.
type Client interface {
	// Complete sends prompt to the reasoning service and returns the raw reply text.
	Complete(ctx context.Context, creds Credentials, prompt string) (string, error)
	// Transcribe sends audio to the speech-to-text service and returns the transcript.
	Transcribe(ctx context.Context, creds Credentials, audio Audio) (string, error)
}

type client struct {
	cfg        config.AgentConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client from agent configuration. Configured credentials
// apply when a call supplies none.
func New(cfg *config.AgentConfig, httpClient *http.Client, logger *slog.Logger) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		cfg:        *cfg,
		httpClient: httpClient,
		logger:     logger.With("system", "agent"),
	}
}

func (c *client) Complete(ctx context.Context, creds Credentials, prompt string) (string, error) {
	api, err := c.open(creds, ServiceReasoning)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutDuration())
	defer cancel()

	start := time.Now()
	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", unavailable(ServiceReasoning, err)
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceUnavailableError{Service: ServiceReasoning, Err: ErrEmptyResponse}
	}

	c.logger.Info(
		"completion received",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason,
		"duration", time.Since(start),
	)

	return resp.Choices[0].Message.Content, nil
}

func (c *client) Transcribe(ctx context.Context, creds Credentials, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", ErrEmptyAudio
	}

	api, err := c.open(creds, ServiceTranscription)
	if err != nil {
		return "", err
	}

	filename := audio.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	language := audio.Language
	if language == "" {
		language = c.cfg.Language
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutDuration())
	defer cancel()

	start := time.Now()
	resp, err := api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio.Data),
		Language: language,
	})
	if err != nil {
		return "", unavailable(ServiceTranscription, err)
	}

	c.logger.Info(
		"transcription received",
		"model", c.cfg.TranscriptionModel,
		"language", language,
		"audio_size", formatting.FormatBytes(int64(len(audio.Data)), 1),
		"duration", time.Since(start),
	)

	return resp.Text, nil
}

func (c *client) open(creds Credentials, service string) (*openai.Client, error) {
	creds = creds.Or(Credentials{
		APIKey:       c.cfg.APIKey,
		Organization: c.cfg.Organization,
		Project:      c.cfg.Project,
	})
	if creds.APIKey == "" {
		return nil, &ServiceUnavailableError{
			Service:    service,
			StatusCode: http.StatusUnauthorized,
			Err:        ErrMissingCredentials,
		}
	}

	oc := openai.DefaultConfig(creds.APIKey)
	oc.BaseURL = c.cfg.BaseURL
	oc.OrgID = creds.Organization
	oc.HTTPClient = c.httpClient

	if creds.Project != "" {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		oc.HTTPClient = &http.Client{
			Transport: &projectTransport{project: creds.Project, base: base},
			Timeout:   c.httpClient.Timeout,
		}
	}

	return openai.NewClientWithConfig(oc), nil
}

func unavailable(service string, err error) error {
	e := &ServiceUnavailableError{Service: service, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		e.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		e.StatusCode = reqErr.HTTPStatusCode
	case errors.Is(err, context.DeadlineExceeded):
		e.StatusCode = http.StatusGatewayTimeout
	}
	return e
}
