// Package livesourcetest provides a live source whose clients are driven by tests.
package livesourcetest

import (
	"context"
	"sync"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/livesource"
)

// Source is a livesource.Source whose clients are driven by the test.
type Source struct {
	mu      sync.Mutex
	clients []*Client
}

func (f *Source) Open(username string, h livesource.Handler) livesource.Client {
	c := &Client{Username: username, handler: h, results: make(chan connectResult, 1)}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

// Clients returns every client opened so far.
func (f *Source) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

// Last returns the most recently opened client, or nil.
func (f *Source) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

type connectResult struct {
	info livesource.RoomInfo
	err  error
}

// Client blocks in Connect until the test calls Succeed or Fail.
type Client struct {
	Username string

	handler livesource.Handler
	results chan connectResult

	mu          sync.Mutex
	disconnects int
}

func (c *Client) Connect(ctx context.Context) (livesource.RoomInfo, error) {
	select {
	case r := <-c.results:
		return r.info, r.err
	case <-ctx.Done():
		return livesource.RoomInfo{}, ctx.Err()
	}
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	return nil
}

// Succeed completes the handshake with roomID.
func (c *Client) Succeed(roomID string) {
	c.results <- connectResult{info: livesource.RoomInfo{RoomID: roomID}}
}

// Fail completes the handshake with err.
func (c *Client) Fail(err error) {
	c.results <- connectResult{err: err}
}

// Emit delivers a raw event synchronously, as the platform reader would.
func (c *Client) Emit(kind string, data map[string]any) {
	c.handler(event.Raw{Kind: kind, Data: data})
}

// Disconnects returns how many times Disconnect was called.
func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}
