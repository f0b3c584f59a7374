// Package commentary turns live events into short spoken co-host reactions:
// a chat-completions call writes the line and a text-to-speech call voices it.
package commentary

import (
	"fmt"
	"strings"

	"github.com/onnwee/liveroom/event"
)

// Personality is the system prompt for the co-host voice.
const Personality = `You are Neo Todak's AI co-host on TikTok Live. You speak casual Manglish, the way Malaysian friends talk. ` +
	`Mix Malay and English naturally in the same sentence. Use words like "weh", "gila", "best ah", "power lah", "lets gooo", "bro" ` +
	`the way real Malaysians do. Keep it SHORT, 10 to 20 words max. Sound like a real person hyping a stream, NOT like a robot reading news. ` +
	`Never use formal Malay. No emojis. Write exactly how it should be SPOKEN out loud.`

// Event types understood by Prompt. Anything else gets a generic hype line.
const (
	TypeGift      = "gift"
	TypeFollow    = "follow"
	TypeShare     = "share"
	TypeJoinBatch = "join_batch"
	TypeChat      = "chat"
	TypeMilestone = "milestone"
)

// Request is the body of a commentary request.
type Request struct {
	EventType     string         `json:"eventType"`
	EventData     map[string]any `json:"eventData"`
	RecentContext []string       `json:"recentContext"`
	Room          string         `json:"room,omitempty"`
}

// Prompt builds the user prompt for one event.
func Prompt(r Request) string {
	var ctx string
	if len(r.RecentContext) > 0 {
		ctx = "Recent events: " + strings.Join(r.RecentContext, "; ")
	}
	d := r.EventData
	str := func(key string) string { return event.FirstString(d, key) }
	num := func(key string) int64 { return event.FirstInt(d, key) }

	var ev string
	switch r.EventType {
	case TypeGift:
		ev = fmt.Sprintf("%s sent %dx %s (%d diamonds). React with hype and gratitude!",
			str("nickname"), num("repeatCount"), str("giftName"), num("diamondCount"))
	case TypeFollow:
		ev = str("nickname") + " just followed! Welcome them warmly."
	case TypeShare:
		ev = str("nickname") + " shared the live! Thank them."
	case TypeJoinBatch:
		ev = fmt.Sprintf("%d new viewers just joined! Names include: %s. Welcome the crowd.", num("count"), names(d))
	case TypeChat:
		ev = fmt.Sprintf("%s said: %q. Give a short fun reaction.", str("nickname"), str("comment"))
	case TypeMilestone:
		ev = fmt.Sprintf("Viewer count hit %d! Celebrate this milestone.", num("count"))
	default:
		ev = "Something happened on the live stream. Give a hype comment."
	}
	return ctx + "\nEvent: " + ev
}

// names accepts either a preformatted string or a list.
func names(d map[string]any) string {
	if list, ok := d["names"].([]any); ok {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return event.FirstString(d, "names")
}
