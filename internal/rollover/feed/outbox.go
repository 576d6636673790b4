package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
	txcontext "trustrails/pkg/platform/tx"
)

// Outbox hands out unpublished messages. Drain claims up to limit of them,
// calls publish, and marks them published only if publish succeeds. Claimed
// rows stay locked until Drain returns, so concurrent relays never publish the
// same batch.
//
//go:generate mockgen -source=outbox.go -destination=mocks/outbox_mocks.go -package=mocks Outbox
type Outbox interface {
	Drain(ctx context.Context, limit int, publish func(context.Context, []Message) error) (int, error)
}

// PostgresOutbox reads the outbox table written by the PostgreSQL event store.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

func (o *PostgresOutbox) Drain(ctx context.Context, limit int, publish func(context.Context, []Message) error) (int, error) {
	var n int
	err := txcontext.Run(ctx, o.db, func(ctx context.Context) error {
		exec := txcontext.ExecutorFrom(ctx, o.db)
		msgs, ids, err := o.claim(ctx, exec, limit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := publish(ctx, msgs); err != nil {
			return err
		}
		_, err = exec.ExecContext(ctx,
			`UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`,
			pq.Array(ids), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		n = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (o *PostgresOutbox) claim(ctx context.Context, exec txcontext.Executor, limit int) ([]Message, []string, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := exec.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var (
		msgs []Message
		ids  []string
	)
	for rows.Next() {
		var (
			rowID     string
			transfer  string
			eventType string
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&rowID, &transfer, &eventType, &payload, &createdAt); err != nil {
			return nil, nil, fmt.Errorf("scan outbox row: %w", err)
		}
		msg := Message{
			TransferID: id.TransferID(transfer),
			EventType:  models.EventType(eventType),
			Payload:    payload,
			CreatedAt:  createdAt,
		}
		// The event id lives in the payload; the row id is only the outbox key.
		if e, err := msg.Decode(); err == nil {
			msg.ID = string(e.ID)
		} else {
			msg.ID = rowID
		}
		msgs = append(msgs, msg)
		ids = append(ids, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return msgs, ids, nil
}
