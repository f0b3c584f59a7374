package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/liveroom/broadcast"
	"github.com/onnwee/liveroom/commentary"
	"github.com/onnwee/liveroom/config"
	"github.com/onnwee/liveroom/session"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx    context.Context
	cfg    *config.Config
	reg    *session.Registry
	router *broadcast.Router
	db     *sql.DB
	redis  Pinger
	voice  *commentary.Client
	mirror session.Publisher

	images      *http.Client
	imageFlight singleflight.Group
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// ctx ends every open WebSocket when it is cancelled.
func NewHandlers(ctx context.Context, d Deps) *Handlers {
	images := d.ImageClient
	if images == nil {
		images = &http.Client{Timeout: 10 * time.Second}
	}
	return &Handlers{
		ctx:    ctx,
		cfg:    d.Config,
		reg:    d.Registry,
		router: d.Router,
		db:     d.DB,
		redis:  d.Redis,
		voice:  d.Voice,
		mirror: d.Mirror,
		images: images,
	}
}
