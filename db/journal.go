package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/telemetry"
)

// DefaultQueueSize is the journal buffer used when NewJournal is given size <= 0.
const DefaultQueueSize = 1024

const writeTimeout = 5 * time.Second

// journaled lists the kinds worth keeping. Presence and status churn is not stored.
var journaled = map[event.Kind]bool{
	event.KindChat:   true,
	event.KindGift:   true,
	event.KindLike:   true,
	event.KindFollow: true,
	event.KindShare:  true,
}

// Entry is one journaled event.
type Entry struct {
	ID         int64           `json:"id"`
	Room       string          `json:"room"`
	Kind       event.Kind      `json:"kind"`
	UserID     string          `json:"userId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Journal appends broadcast events to room_events from a single writer
// goroutine. Publish never blocks; entries are dropped when the queue is full.
type Journal struct {
	db     *sql.DB
	insert func(context.Context, Entry) error
	queue  chan Entry
	now    func() time.Time
}

// NewJournal returns a journal writing to database. Call Run to start the writer.
func NewJournal(database *sql.DB, size int) *Journal {
	j := newJournal(nil, size)
	j.db = database
	j.insert = j.insertSQL
	return j
}

func newJournal(insert func(context.Context, Entry) error, size int) *Journal {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Journal{insert: insert, queue: make(chan Entry, size), now: time.Now}
}

// Publish queues kind for the writer when it is a journaled kind.
func (j *Journal) Publish(room string, kind event.Kind, payload any) {
	if !journaled[kind] {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("journal: unencodable payload", slog.String("kind", string(kind)), slog.Any("err", err))
		return
	}
	e := Entry{Room: room, Kind: kind, UserID: userID(payload), Payload: b, OccurredAt: j.now()}
	select {
	case j.queue <- e:
	default:
		telemetry.IncJournalDropped()
	}
}

// Run writes queued entries until ctx is done, then flushes what is already
// queued. Writes are detached from ctx cancellation.
func (j *Journal) Run(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "journal"))
	write := func(e Entry) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := j.insert(wctx, e); err != nil {
			logger.Warn("journal insert failed", slog.String("room", e.Room), slog.Any("err", err))
		}
	}
	for {
		select {
		case e := <-j.queue:
			write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-j.queue:
					write(e)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) insertSQL(ctx context.Context, e Entry) error {
	var uid sql.NullString
	if e.UserID != "" {
		uid = sql.NullString{String: e.UserID, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO room_events(room, kind, user_id, payload, occurred_at) VALUES($1,$2,$3,$4,$5)`,
		e.Room, string(e.Kind), uid, []byte(e.Payload), e.OccurredAt)
	return err
}

// Tail returns up to limit of the most recent entries for room, newest first.
func Tail(ctx context.Context, database *sql.DB, room string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := database.QueryContext(ctx,
		`SELECT id, room, kind, COALESCE(user_id, ''), payload, occurred_at
		 FROM room_events WHERE room = $1 ORDER BY id DESC LIMIT $2`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query room events: %w", err)
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Room, &kind, &e.UserID, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Kind = event.Kind(kind)
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func userID(payload any) string {
	switch p := payload.(type) {
	case event.Chat:
		return p.ID
	case event.Gift:
		return p.ID
	case event.Like:
		return p.ID
	case event.Follow:
		return p.ID
	}
	return ""
}
