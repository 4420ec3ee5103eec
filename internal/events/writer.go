package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends entries to the activity diary.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event outside any enclosing transaction.
func (w Writer) Append(ctx context.Context, evtType, formName, entityKind, entityID string, payload EventPayload) error {
	ts, data, err := w.prepare(payload)
	if err != nil {
		return err
	}
	_, err = w.DB.ExecContext(ctx, insertSQL, ts, evtType, nullable(formName), entityKind, nullable(entityID), data)
	return err
}

// AppendTx writes an event inside the caller's transaction.
func (w Writer) AppendTx(ctx context.Context, tx *sql.Tx, evtType, formName, entityKind, entityID string, payload EventPayload) error {
	ts, data, err := w.prepare(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, insertSQL, ts, evtType, nullable(formName), entityKind, nullable(entityID), data)
	return err
}

const insertSQL = `INSERT INTO events(ts,type,form_name,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`

func (w Writer) prepare(payload EventPayload) (string, string, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal event payload: %w", err)
	}
	return ts, string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
