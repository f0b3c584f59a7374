package event

import (
	"bytes"
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return m
}

func TestExtractUser(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    User
	}{
		{
			name:    "nested v2 user with profilePicture.url",
			payload: `{"user":{"userId":7301234567890123456,"uniqueId":"neo","nickname":"Neo","followRole":1,"isModerator":true,"profilePicture":{"url":["https://p16/a.webp","https://p16/b.webp"]}}}`,
			want:    User{ID: "7301234567890123456", UniqueID: "neo", Nickname: "Neo", ProfilePic: "https://p16/a.webp", IsFollower: true, IsModerator: true},
		},
		{
			name:    "flat legacy payload with profilePictureUrl",
			payload: `{"userId":"42","uniqueId":"flat","nickname":"Flat","profilePictureUrl":"https://legacy/pic.jpg"}`,
			want:    User{ID: "42", UniqueID: "flat", Nickname: "Flat", ProfilePic: "https://legacy/pic.jpg"},
		},
		{
			name:    "avatar_thumb url_list fallback",
			payload: `{"user":{"uniqueId":"thumb","avatar_thumb":{"url_list":["https://thumb/1.jpg"]}}}`,
			want:    User{ID: "thumb", UniqueID: "thumb", Nickname: "thumb", ProfilePic: "https://thumb/1.jpg"},
		},
		{
			name:    "empty first candidate falls through",
			payload: `{"user":{"userId":"9","profilePicture":{"url":[]},"avatarThumb":{"urls":["https://t/2.jpg"]}}}`,
			want:    User{ID: "9", Nickname: "Unknown", ProfilePic: "https://t/2.jpg"},
		},
		{
			name:    "nothing resolvable",
			payload: `{"comment":"hi"}`,
			want:    User{Nickname: "Unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractUser(decode(t, tt.payload))
			if got != tt.want {
				t.Fatalf("ExtractUser() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsStreakInProgress(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`{"giftType":1,"repeatEnd":false}`, true},
		{`{"giftType":1}`, true},
		{`{"giftType":1,"repeatEnd":true}`, false},
		{`{"giftType":2,"repeatEnd":false}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		if got := IsStreakInProgress(decode(t, tt.payload)); got != tt.want {
			t.Errorf("IsStreakInProgress(%s) = %v, want %v", tt.payload, got, tt.want)
		}
	}
}

func TestNormalizeGiftDefaults(t *testing.T) {
	g := NormalizeGift(decode(t, `{"uniqueId":"x","giftId":5655}`))
	if g.GiftName != "Gift" || g.RepeatCount != 1 || g.DiamondCount != 0 || g.GiftID != 5655 {
		t.Fatalf("unexpected gift defaults: %+v", g)
	}
	g = NormalizeGift(decode(t, `{"uniqueId":"x","giftDetails":{"giftName":"Rose","diamondCount":1},"repeatCount":7}`))
	if g.GiftName != "Rose" || g.DiamondCount != 1 || g.RepeatCount != 7 {
		t.Fatalf("nested gift details not resolved: %+v", g)
	}
}

func TestNormalizeLike(t *testing.T) {
	l := NormalizeLike(decode(t, `{"uniqueId":"x","likeCount":15,"totalLikeCount":900}`))
	if l.LikeCount != 15 || l.TotalLikes != 900 {
		t.Fatalf("unexpected like: %+v", l)
	}
	l = NormalizeLike(decode(t, `{"uniqueId":"x"}`))
	if l.LikeCount != 1 {
		t.Fatalf("like count default = %d, want 1", l.LikeCount)
	}
}

func TestSocialKinds(t *testing.T) {
	tests := []struct {
		displayType string
		want        []Kind
	}{
		{"pm_main_follow_message_viewer_2", []Kind{KindFollow}},
		{"pm_mt_guidance_share", []Kind{KindShare}},
		{"", nil},
	}
	for _, tt := range tests {
		got := SocialKinds(map[string]any{"displayType": tt.displayType})
		if len(got) != len(tt.want) {
			t.Fatalf("SocialKinds(%q) = %v, want %v", tt.displayType, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("SocialKinds(%q) = %v, want %v", tt.displayType, got, tt.want)
			}
		}
	}
}

func TestConnectionStatusJSON(t *testing.T) {
	b, _ := json.Marshal(Disconnected())
	if string(b) != `{"connected":false,"roomId":null,"error":null}` {
		t.Fatalf("disconnected = %s", b)
	}
	b, _ = json.Marshal(Connected("7123"))
	if string(b) != `{"connected":true,"roomId":"7123","error":null}` {
		t.Fatalf("connected = %s", b)
	}
	b, _ = json.Marshal(Failed("boom"))
	if string(b) != `{"connected":false,"roomId":null,"error":"boom"}` {
		t.Fatalf("failed = %s", b)
	}
}
