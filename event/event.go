// Package event defines the canonical event shapes delivered to subscribers and
// the normalizer that maps raw live-source payloads onto them.
//
// Every outbound frame on the wire is an Envelope: {"event": <kind>, "data": <payload>}.
// Payload timestamps are unix milliseconds and are assigned at broadcast time by
// the session that emits them, never at external receipt.
package event

import "time"

// Kind names an outbound (or inbound) event on the subscriber channel.
type Kind string

const (
	KindConnectionStatus Kind = "connection-status"
	KindViewerJoin       Kind = "viewer-join"
	KindViewerList       Kind = "viewer-list"
	KindChat             Kind = "chat"
	KindGift             Kind = "gift"
	KindLike             Kind = "like"
	KindFollow           Kind = "follow"
	KindShare            Kind = "share"
	KindRoomStats        Kind = "room-stats"
	KindBotsRemoved      Kind = "bots-removed"
	KindHostCommand      Kind = "host-command"
	KindStateSync        Kind = "state-sync"
	KindAuthError        Kind = "auth-error"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event Kind `json:"event"`
	Data  any  `json:"data"`
}

// User carries the viewer fields shared by every user-attributed event.
type User struct {
	ID          string `json:"id"`
	UniqueID    string `json:"uniqueId"`
	Nickname    string `json:"nickname"`
	ProfilePic  string `json:"profilePic"`
	IsFollower  bool   `json:"isFollower"`
	IsModerator bool   `json:"isModerator"`
}

// Viewer is a roster entry as seen by subscribers.
type Viewer struct {
	User
	JoinedAt int64 `json:"joinedAt"`
	LastSeen int64 `json:"lastSeen,omitempty"`
}

type Chat struct {
	User
	Comment   string `json:"comment"`
	Timestamp int64  `json:"timestamp"`
}

type Gift struct {
	User
	GiftName       string `json:"giftName"`
	GiftID         int64  `json:"giftId,omitempty"`
	DiamondCount   int    `json:"diamondCount"`
	RepeatCount    int    `json:"repeatCount"`
	GiftPictureURL string `json:"giftPictureUrl"`
	Timestamp      int64  `json:"timestamp"`
}

type Like struct {
	User
	LikeCount  int   `json:"likeCount"`
	TotalLikes int   `json:"totalLikes"`
	Timestamp  int64 `json:"timestamp"`
}

// Follow is also used for share notices; only the kind differs on the wire.
type Follow struct {
	User
	Timestamp int64 `json:"timestamp"`
}

type RoomStats struct {
	ViewerCount int `json:"viewerCount"`
}

// ConnectionStatus mirrors the session's connection state record. RoomID and
// Error marshal as null when unset.
type ConnectionStatus struct {
	Connected bool    `json:"connected"`
	RoomID    *string `json:"roomId"`
	Error     *string `json:"error"`
}

// Connected builds the status for a live (or synthetic live) connection.
func Connected(roomID string) ConnectionStatus {
	return ConnectionStatus{Connected: true, RoomID: &roomID}
}

// Disconnected builds the status for an intentional stop (no error).
func Disconnected() ConnectionStatus {
	return ConnectionStatus{}
}

// Failed builds the status for a failure-driven disconnect.
func Failed(msg string) ConnectionStatus {
	return ConnectionStatus{Error: &msg}
}

type AuthError struct {
	Error string `json:"error"`
}

// HostCommand is relayed verbatim; Data is left undecoded.
type HostCommand struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// Millis converts t to the unix-millisecond representation used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
