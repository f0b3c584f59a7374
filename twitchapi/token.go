package twitchapi

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is Twitch's OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// NewAppTokenSource returns a cached, auto-refreshing app access token source
// (client credentials grant). App tokens are fine for Helix lookups but cannot
// be used to log in to chat.
func NewAppTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string, hc *http.Client) (oauth2.TokenSource, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("missing client id/secret for twitch app token")
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cfg.TokenSource(ctx), nil
}
