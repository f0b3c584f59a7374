package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/liveroom/broadcast"
	"github.com/onnwee/liveroom/clock"
	"github.com/onnwee/liveroom/commentary"
	"github.com/onnwee/liveroom/config"
	"github.com/onnwee/liveroom/livesource/livesourcetest"
	"github.com/onnwee/liveroom/session"
)

type testEnv struct {
	cfg    *config.Config
	router *broadcast.Router
	reg    *session.Registry
	src    *livesourcetest.Source
	srv    *httptest.Server
}

// newTestEnv starts the full mux over a fake live source. mutate adjusts the
// config and deps before the mux is built.
func newTestEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	cfg := &config.Config{DefaultUsername: "broneotodak", LegacyDefaultMirror: true}
	d := Deps{Config: cfg}
	if mutate != nil {
		mutate(cfg, &d)
	}

	e := &testEnv{cfg: cfg, src: &livesourcetest.Source{}}
	e.router = broadcast.NewRouter(broadcast.WithDefaultMirror(cfg.LegacyDefaultMirror))
	e.reg = session.NewRegistry(session.NewGate(cfg.AccessPIN, cfg.Hosts), session.Deps{
		Clock:     clock.Real(),
		Publisher: e.router,
		Source:    e.src,
		Grace:     cfg.Grace,
	})
	t.Cleanup(e.reg.Close)

	d.Registry = e.reg
	d.Router = e.router
	if d.Voice == nil {
		d.Voice = commentary.New(commentary.Config{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.srv = httptest.NewServer(NewMux(ctx, d))
	t.Cleanup(e.srv.Close)
	return e
}
