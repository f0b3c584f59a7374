// Package twitchapi contains minimal helpers for the Twitch Helix API, used to
// resolve a channel login to its broadcaster id and profile before joining chat.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultHelixURL is the production Helix base URL.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when a login does not exist.
var ErrUserNotFound = errors.New("user not found")

// HelixClient provides the few Helix calls the chat source needs.
type HelixClient struct {
	BaseURL    string
	ClientID   string
	Tokens     oauth2.TokenSource
	HTTPClient *http.Client
}

// User is a Helix user record.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Stream is a Helix live stream record.
type Stream struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	ViewerCount int    `json:"viewer_count"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// GetUser resolves a login name.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (User, error) {
	if login == "" {
		return User{}, fmt.Errorf("login empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, "/users", "login", login, &body); err != nil {
		return User{}, err
	}
	if len(body.Data) == 0 {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	return body.Data[0], nil
}

// GetStream returns the live stream for userID, or ok=false when offline.
func (hc *HelixClient) GetStream(ctx context.Context, userID string) (Stream, bool, error) {
	if userID == "" {
		return Stream{}, false, fmt.Errorf("userID empty")
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "/streams", "user_id", userID, &body); err != nil {
		return Stream{}, false, err
	}
	if len(body.Data) == 0 {
		return Stream{}, false, nil
	}
	return body.Data[0], true, nil
}

func (hc *HelixClient) get(ctx context.Context, path, key, value string, out any) error {
	if hc.Tokens == nil {
		return errors.New("helix: no token source")
	}
	tok, err := hc.Tokens.Token()
	if err != nil {
		return fmt.Errorf("helix token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set(key, value)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("helix %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
