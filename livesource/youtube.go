package livesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/liveroom/event"
)

// YouTube polls a live broadcast's chat through the YouTube Data API. The
// username is the broadcast's video id; the active live chat id is the room id.
type YouTube struct {
	APIKey string
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// MinPoll bounds the server-suggested polling interval from below.
	MinPoll time.Duration
}

func (y *YouTube) Open(videoID string, h Handler) Client {
	return &youtubeClient{src: y, videoID: videoID, handler: h}
}

type youtubeClient struct {
	src     *YouTube
	videoID string
	handler Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (y *YouTube) service(ctx context.Context) (*yt.Service, error) {
	opts := []option.ClientOption{option.WithAPIKey(y.APIKey)}
	if y.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.Endpoint))
	}
	return yt.NewService(ctx, opts...)
}

func (c *youtubeClient) Connect(ctx context.Context) (RoomInfo, error) {
	svc, err := c.src.service(ctx)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("youtube client: %w", err)
	}
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(c.videoID).Context(ctx).Do()
	if err != nil {
		return RoomInfo{}, fmt.Errorf("youtube video lookup: %w", err)
	}
	if len(resp.Items) == 0 {
		return RoomInfo{}, fmt.Errorf("youtube video %q not found", c.videoID)
	}
	lsd := resp.Items[0].LiveStreamingDetails
	if lsd == nil || lsd.ActiveLiveChatId == "" {
		return RoomInfo{}, errors.New("broadcast is not live")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return RoomInfo{}, ErrClosed
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.poll(pollCtx, svc, lsd.ActiveLiveChatId)
	return RoomInfo{RoomID: lsd.ActiveLiveChatId}, nil
}

// poll pages through the chat until cancelled or the API refuses.
func (c *youtubeClient) poll(ctx context.Context, svc *yt.Service, chatID string) {
	pageToken := ""
	for {
		call := svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("youtube chat poll failed", slog.String("video", c.videoID), slog.Any("err", err))
			c.handler(event.Raw{Kind: event.RawError, Data: map[string]any{"message": err.Error()}})
			c.handler(event.Raw{Kind: event.RawDisconnected})
			return
		}
		// The first page is backlog; the session's grace window hides it.
		for _, m := range resp.Items {
			if raw, ok := translateYouTube(m); ok {
				c.handler(raw)
			}
		}
		pageToken = resp.NextPageToken
		if resp.OfflineAt != "" {
			c.handler(event.Raw{Kind: event.RawDisconnected})
			return
		}

		wait := time.Duration(resp.PollingIntervalMillis) * time.Millisecond
		if wait < c.src.MinPoll {
			wait = c.src.MinPoll
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func translateYouTube(m *yt.LiveChatMessage) (event.Raw, bool) {
	if m == nil || m.Snippet == nil {
		return event.Raw{}, false
	}
	user := map[string]any{}
	if a := m.AuthorDetails; a != nil {
		user["userId"] = a.ChannelId
		user["uniqueId"] = a.ChannelId
		user["nickname"] = a.DisplayName
		user["avatarUrl"] = a.ProfileImageUrl
		user["isModerator"] = a.IsChatModerator || a.IsChatOwner
		if a.IsChatSponsor {
			user["followRole"] = 1
		}
	}
	sn := m.Snippet
	switch sn.Type {
	case "textMessageEvent":
		return event.Raw{Kind: event.RawChat, Data: map[string]any{"user": user, "comment": sn.DisplayMessage}}, true
	case "superChatEvent":
		d := map[string]any{"user": user, "giftName": "Super Chat", "repeatCount": 1}
		if sc := sn.SuperChatDetails; sc != nil {
			d["giftName"] = "Super Chat " + sc.AmountDisplayString
			d["diamondCount"] = int64(sc.AmountMicros / 1_000_000)
		}
		return event.Raw{Kind: event.RawGift, Data: d}, true
	case "superStickerEvent":
		d := map[string]any{"user": user, "giftName": "Super Sticker", "repeatCount": 1}
		if ss := sn.SuperStickerDetails; ss != nil {
			d["diamondCount"] = int64(ss.AmountMicros / 1_000_000)
		}
		return event.Raw{Kind: event.RawGift, Data: d}, true
	case "newSponsorEvent", "memberMilestoneChatEvent":
		return event.Raw{Kind: event.RawFollow, Data: map[string]any{"user": user}}, true
	default:
		return event.Raw{}, false
	}
}

func (c *youtubeClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
