package session

import (
	"crypto/subtle"
)

// Host is a pre-provisioned host: a token bound to one room.
type Host struct {
	Token       string `yaml:"token"`
	DisplayName string `yaml:"displayName"`
	RoomID      string `yaml:"roomId"`
}

// Grant is what a token entitles its bearer to.
type Grant struct {
	Room        string
	DisplayName string
	// Fixed is set for host tokens: the room comes from the token, not the request.
	Fixed bool
}

// Gate decides who may create sessions. With no shared token and no hosts it
// is open.
type Gate struct {
	shared string
	hosts  []Host
}

func NewGate(sharedToken string, hosts []Host) *Gate {
	return &Gate{shared: sharedToken, hosts: hosts}
}

// Open reports whether access control is disabled.
func (g *Gate) Open() bool {
	return g == nil || (g.shared == "" && len(g.hosts) == 0)
}

// Authorize resolves the room token may use. Host tokens fix the room and
// display name; the shared token and an open gate let the caller pick.
func (g *Gate) Authorize(token, requested string) (Grant, error) {
	if g.Open() {
		return Grant{Room: requested}, nil
	}
	if h, ok := g.host(token); ok {
		return Grant{Room: h.RoomID, DisplayName: h.DisplayName, Fixed: true}, nil
	}
	if g.shared != "" && equal(token, g.shared) {
		return Grant{Room: requested}, nil
	}
	return Grant{}, ErrUnauthorized
}

// allows reports whether token may create exactly room.
func (g *Gate) allows(token, room string) (Grant, bool) {
	grant, err := g.Authorize(token, room)
	if err != nil {
		return Grant{}, false
	}
	if grant.Fixed && grant.Room != room {
		return Grant{}, false
	}
	return grant, true
}

func (g *Gate) host(token string) (Host, bool) {
	if token == "" {
		return Host{}, false
	}
	for _, h := range g.hosts {
		if equal(token, h.Token) {
			return h, true
		}
	}
	return Host{}, false
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
