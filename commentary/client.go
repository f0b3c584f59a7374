package commentary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/liveroom/telemetry"
)

const (
	DefaultChatURL   = "https://api.openai.com/v1/chat/completions"
	DefaultSpeechURL = "https://api.elevenlabs.io/v1/text-to-speech"
	DefaultVoiceID   = "lvNyQwaZPcGFiNUWWiVa"

	chatModel       = "gpt-4o-mini"
	chatMaxTokens   = 80
	chatTemperature = 0.9
	speechModel     = "eleven_multilingual_v2"
	maxAudioBytes   = 8 << 20
)

var (
	// ErrNotConfigured means one of the API keys is missing.
	ErrNotConfigured = errors.New("commentary: api keys not configured")
	// ErrEmpty means the model returned no text.
	ErrEmpty = errors.New("commentary: empty completion")
	// ErrUpstream wraps non-2xx responses from either provider.
	ErrUpstream = errors.New("commentary: upstream failure")
)

// Config holds provider credentials and endpoints. Empty URLs use the
// production defaults.
type Config struct {
	OpenAIKey     string
	ElevenLabsKey string
	VoiceID       string
	ChatURL       string
	SpeechURL     string
	HTTPClient    *http.Client
}

// Client generates voiced commentary.
type Client struct {
	cfg  Config
	chat *http.Client
}

// New returns a client. A client without keys is valid but Generate always
// fails with ErrNotConfigured.
func New(cfg Config) *Client {
	if cfg.ChatURL == "" {
		cfg.ChatURL = DefaultChatURL
	}
	if cfg.SpeechURL == "" {
		cfg.SpeechURL = DefaultSpeechURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.HTTPClient = base
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &Client{
		cfg:  cfg,
		chat: oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.OpenAIKey, TokenType: "Bearer"})),
	}
}

// Enabled reports whether both keys are present.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.OpenAIKey != "" && c.cfg.ElevenLabsKey != ""
}

// Result is one voiced line.
type Result struct {
	Text        string
	Audio       []byte
	ContentType string
}

// Generate writes and voices a reaction to r.
func (c *Client) Generate(ctx context.Context, r Request) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrNotConfigured
	}
	ctx, span := telemetry.StartSpan(ctx, "commentary", "commentary.generate", telemetry.RoomAttr(r.Room))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.ObserveSeconds(telemetry.CommentaryDuration, time.Since(start).Seconds()) }()

	text, err := c.Text(ctx, Prompt(r))
	if err != nil {
		telemetry.IncCommentaryFailure("text")
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	audio, ctype, err := c.Speech(ctx, text)
	if err != nil {
		telemetry.IncCommentaryFailure("speech")
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	telemetry.SetSpanSuccess(span)
	return Result{Text: text, Audio: audio, ContentType: ctype}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Text asks the chat model for one line in the co-host voice.
func (c *Client) Text(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: Personality},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.chat.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", upstream("chat completion", resp)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmpty
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Speech voices text. It returns the audio and its content type.
func (c *Client) Speech(ctx context.Context, text string) ([]byte, string, error) {
	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: speechModel,
		VoiceSettings: voiceSettings{
			Stability:       0.3,
			SimilarityBoost: 0.85,
			Style:           0.7,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, "", err
	}
	url := strings.TrimRight(c.cfg.SpeechURL, "/") + "/" + c.cfg.VoiceID + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.ElevenLabsKey)
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("text to speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", upstream("text to speech", resp)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read speech: %w", err)
	}
	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = "audio/mpeg"
	}
	return audio, ctype, nil
}

func upstream(stage string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	slog.Warn("commentary upstream error", slog.String("stage", stage), slog.Int("status", resp.StatusCode), slog.String("body", string(snippet)))
	return fmt.Errorf("%w: %s returned %d", ErrUpstream, stage, resp.StatusCode)
}
