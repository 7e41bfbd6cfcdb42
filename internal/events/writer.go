package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"focusline/internal/notify"
)

type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Level   string         `json:"level"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Writer appends notifications to the events table.
type Writer struct {
	DB     *sql.DB
	Now    func() time.Time
	Logger hclog.Logger
}

func (w Writer) Append(ctx context.Context, n notify.Notification) error {
	ts := n.TS
	if ts.IsZero() {
		if w.Now == nil {
			w.Now = time.Now
		}
		ts = w.Now()
	}
	payload := n.Fields
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,level,kind,message,payload_json) VALUES (?,?,?,?,?)`,
		ts.UTC().Format(time.RFC3339Nano), string(n.Level), n.Kind, n.Message, string(data))
	return err
}

// Notify implements notify.Notifier. A failed append is logged and dropped.
func (w Writer) Notify(ctx context.Context, n notify.Notification) {
	if err := w.Append(ctx, n); err != nil && w.Logger != nil {
		w.Logger.Warn("append event failed", "kind", n.Kind, "error", err)
	}
}

// Latest returns up to limit events, newest first, optionally filtered by kind.
func (w Writer) Latest(ctx context.Context, limit int, kind string) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,level,kind,message,payload_json FROM events`
	var args []any
	if kind != "" {
		query += ` WHERE kind=?`
		args = append(args, kind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Level, &e.Kind, &e.Message, &payload); err != nil {
			return nil, err
		}
		if payload != "" && payload != "{}" {
			_ = json.Unmarshal([]byte(payload), &e.Payload)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
