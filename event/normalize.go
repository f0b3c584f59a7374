package event

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Raw kinds emitted by live sources. The vocabulary follows the TikTok live
// connector; other sources translate into it.
const (
	RawMember       = "member"
	RawChat         = "chat"
	RawGift         = "gift"
	RawLike         = "like"
	RawFollow       = "follow"
	RawShare        = "share"
	RawSocial       = "social"
	RawRoomUser     = "roomUser"
	RawDisconnected = "disconnected"
	RawError        = "error"
)

// Raw is one untyped event as delivered by a live source. Data is the decoded
// JSON object; nested objects are map[string]any and arrays are []any.
type Raw struct {
	Kind string
	Data map[string]any
}

// avatarPaths lists candidate avatar locations across API versions, most
// specific first. Paths are resolved against the user object.
var avatarPaths = []string{
	"profilePicture.url.0",
	"profilePicture.urls.0",
	"profilePictureUrl",
	"avatarThumb.url.0",
	"avatarThumb.urls.0",
	"avatarMedium.url.0",
	"avatar_thumb.url_list.0",
	"avatarUrl",
}

// ExtractUser resolves the viewer fields of a raw payload. The user object may
// be nested under "user" or flattened into the payload itself. It never fails:
// fields that cannot be resolved come back empty, and the nickname falls back
// to the handle and then to "Unknown".
func ExtractUser(data map[string]any) User {
	u := data
	if nested, ok := data["user"].(map[string]any); ok {
		u = nested
	}
	uniqueID := FirstString(u, "uniqueId")
	return User{
		ID:          FirstString(u, "userId", "uniqueId"),
		UniqueID:    uniqueID,
		Nickname:    orDefault(FirstString(u, "nickname", "uniqueId"), "Unknown"),
		ProfilePic:  FirstString(u, avatarPaths...),
		IsFollower:  FirstInt(u, "followRole") >= 1,
		IsModerator: FirstBool(u, "isModerator"),
	}
}

// NormalizeChat builds a chat event from a raw payload.
func NormalizeChat(data map[string]any) Chat {
	return Chat{User: ExtractUser(data), Comment: FirstString(data, "comment")}
}

// IsStreakInProgress reports whether a gift payload is an intermediate step of
// a multi-send streak. Only the streak's final event (or a non-streakable gift)
// should be delivered.
func IsStreakInProgress(data map[string]any) bool {
	return FirstInt(data, "giftType") == 1 && !FirstBool(data, "repeatEnd")
}

// NormalizeGift builds a gift event from a raw payload.
func NormalizeGift(data map[string]any) Gift {
	return Gift{
		User:           ExtractUser(data),
		GiftName:       orDefault(FirstString(data, "giftName", "giftDetails.giftName"), "Gift"),
		GiftID:         FirstInt(data, "giftId"),
		DiamondCount:   int(FirstInt(data, "diamondCount", "giftDetails.diamondCount")),
		RepeatCount:    int(max(FirstInt(data, "repeatCount"), 1)),
		GiftPictureURL: FirstString(data, "giftPictureUrl", "giftDetails.giftImage.giftPictureUrl"),
	}
}

// NormalizeLike builds a like event from a raw payload.
func NormalizeLike(data map[string]any) Like {
	return Like{
		User:       ExtractUser(data),
		LikeCount:  int(max(FirstInt(data, "likeCount"), 1)),
		TotalLikes: int(FirstInt(data, "totalLikeCount", "totalLikes")),
	}
}

// NormalizeFollow builds a follow (or share) notice.
func NormalizeFollow(data map[string]any) Follow {
	return Follow{User: ExtractUser(data)}
}

// SocialKinds maps a legacy "social" payload to the follow/share kinds it
// represents, using a substring match on displayType.
func SocialKinds(data map[string]any) []Kind {
	dt := FirstString(data, "displayType")
	var out []Kind
	if strings.Contains(dt, "follow") {
		out = append(out, KindFollow)
	}
	if strings.Contains(dt, "share") {
		out = append(out, KindShare)
	}
	return out
}

// NormalizeRoomStats builds a viewer-count snapshot.
func NormalizeRoomStats(data map[string]any) RoomStats {
	return RoomStats{ViewerCount: int(FirstInt(data, "viewerCount"))}
}

// FirstString returns the first path that resolves to a non-empty value,
// rendered as a string. Numbers are formatted without exponent so numeric user
// ids survive the trip through JSON.
func FirstString(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := toString(lookup(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// FirstInt returns the first path that resolves to a number (or numeric string).
func FirstInt(m map[string]any, paths ...string) int64 {
	for _, p := range paths {
		if n, ok := toInt(lookup(m, p)); ok {
			return n
		}
	}
	return 0
}

// FirstBool returns the first path that resolves to a boolean.
func FirstBool(m map[string]any, paths ...string) bool {
	for _, p := range paths {
		if b, ok := lookup(m, p).(bool); ok {
			return b
		}
	}
	return false
}

// lookup walks a dotted path through nested maps and slices. Numeric segments
// index into slices.
func lookup(m map[string]any, path string) any {
	var cur any = m
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			cur = v[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			cur = v[i]
		case []string:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			cur = v[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e18 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
