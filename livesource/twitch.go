package livesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/twitchapi"
)

// Twitch reads a channel's chat anonymously over IRC and translates it into
// raw events. Cheers and subscriptions become gifts, raids become shares and
// the broadcaster id is the room id.
type Twitch struct {
	// Helix, when set, checks the channel exists and is live before joining.
	Helix *twitchapi.HelixClient
	// NewIRC builds the IRC client; tests replace it.
	NewIRC func() IRC
}

// IRC is the part of *twitch.Client the adapter uses.
type IRC interface {
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnUserNoticeMessage(func(twitch.UserNoticeMessage))
	OnRoomStateMessage(func(twitch.RoomStateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// NewTwitch builds the Twitch source. Helix lookups are enabled when app
// credentials are supplied.
func NewTwitch(clientID, clientSecret, helixURL string) *Twitch {
	t := &Twitch{}
	if clientID != "" && clientSecret != "" {
		ts, err := twitchapi.NewAppTokenSource(context.Background(), clientID, clientSecret, "", nil)
		if err == nil {
			t.Helix = &twitchapi.HelixClient{BaseURL: helixURL, ClientID: clientID, Tokens: ts}
		}
	}
	return t
}

func (t *Twitch) Open(username string, h Handler) Client {
	return &twitchClient{src: t, channel: strings.ToLower(strings.TrimPrefix(username, "#")), handler: h}
}

type twitchClient struct {
	src     *Twitch
	channel string
	handler Handler

	mu     sync.Mutex
	irc    IRC
	closed bool
	joined chan string
	once   sync.Once
}

func (c *twitchClient) Connect(ctx context.Context) (RoomInfo, error) {
	var broadcaster twitchapi.User
	if c.src.Helix != nil {
		u, err := c.src.Helix.GetUser(ctx, c.channel)
		if err != nil {
			return RoomInfo{}, fmt.Errorf("resolve twitch channel: %w", err)
		}
		_, live, err := c.src.Helix.GetStream(ctx, u.ID)
		if err != nil {
			return RoomInfo{}, fmt.Errorf("twitch stream status: %w", err)
		}
		if !live {
			return RoomInfo{}, fmt.Errorf("twitch channel %q is offline", c.channel)
		}
		broadcaster = u
	}

	var irc IRC
	if c.src.NewIRC != nil {
		irc = c.src.NewIRC()
	} else {
		irc = twitch.NewAnonymousClient()
	}
	c.joined = make(chan string, 1)
	irc.OnRoomStateMessage(func(m twitch.RoomStateMessage) {
		c.once.Do(func() { c.joined <- m.RoomID })
	})
	irc.OnPrivateMessage(c.onPrivate)
	irc.OnUserNoticeMessage(c.onNotice)
	irc.Join(c.channel)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return RoomInfo{}, ErrClosed
	}
	c.irc = irc
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- irc.Connect() }()

	select {
	case roomID := <-c.joined:
		if roomID == "" {
			roomID = broadcaster.ID
		}
		go c.watch(done)
		return RoomInfo{RoomID: roomID}, nil
	case err := <-done:
		if err == nil {
			err = errors.New("irc connection closed before join")
		}
		return RoomInfo{}, fmt.Errorf("twitch irc: %w", err)
	case <-ctx.Done():
		_ = irc.Disconnect()
		return RoomInfo{}, ctx.Err()
	}
}

// watch reports an unrequested end of the IRC session.
func (c *twitchClient) watch(done <-chan error) {
	err := <-done
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	slog.Warn("twitch irc closed", slog.String("channel", c.channel), slog.Any("err", err))
	c.handler(event.Raw{Kind: event.RawDisconnected})
}

func (c *twitchClient) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	irc := c.irc
	c.mu.Unlock()
	if irc == nil {
		return nil
	}
	// The IRC reader may be blocked delivering to our handler.
	go func() { _ = irc.Disconnect() }()
	return nil
}

func twitchUser(u twitch.User, tags map[string]string) map[string]any {
	_, mod := u.Badges["moderator"]
	_, sub := u.Badges["subscriber"]
	follow := 0
	if sub {
		follow = 1
	}
	return map[string]any{
		"userId":      u.ID,
		"uniqueId":    u.Name,
		"nickname":    u.DisplayName,
		"isModerator": mod || tags["mod"] == "1",
		"followRole":  follow,
	}
}

func (c *twitchClient) onPrivate(m twitch.PrivateMessage) {
	user := twitchUser(m.User, m.Tags)
	if m.Bits > 0 {
		c.handler(event.Raw{Kind: event.RawGift, Data: map[string]any{
			"user":         user,
			"giftName":     "Bits",
			"diamondCount": m.Bits,
			"repeatCount":  1,
		}})
	}
	c.handler(event.Raw{Kind: event.RawChat, Data: map[string]any{"user": user, "comment": m.Message}})
}

func (c *twitchClient) onNotice(m twitch.UserNoticeMessage) {
	user := twitchUser(m.User, m.Tags)
	switch m.MsgID {
	case "sub", "resub", "subgift", "submysterygift":
		c.handler(event.Raw{Kind: event.RawGift, Data: map[string]any{
			"user":        user,
			"giftName":    "Subscription",
			"repeatCount": max(1, atoi(m.MsgParams["msg-param-mass-gift-count"])),
		}})
	case "raid":
		c.handler(event.Raw{Kind: event.RawShare, Data: map[string]any{"user": user}})
	default:
		c.handler(event.Raw{Kind: event.RawMember, Data: map[string]any{"user": user}})
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
