package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
	txcontext "trustrails/pkg/platform/tx"
)

// Store implements eventlog.Store on PostgreSQL. Every inserted event is also
// written to the outbox in the same transaction; the feed relay publishes the
// outbox, which gives the change feed at-least-once delivery.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts events that are not already present and returns them.
// Duplicates are ignored via ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, events ...models.Event) ([]models.Event, error) {
	var inserted []models.Event
	write := func(ctx context.Context) error {
		exec := txcontext.ExecutorFrom(ctx, s.db)
		for _, e := range events {
			ok, err := s.insertEvent(ctx, exec, &e)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.insertOutbox(ctx, exec, e); err != nil {
				return err
			}
			inserted = append(inserted, e)
		}
		return nil
	}

	if _, inTx := txcontext.From(ctx); inTx {
		if err := write(ctx); err != nil {
			return nil, err
		}
		return inserted, nil
	}
	if err := txcontext.Run(ctx, s.db, write); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *Store) insertEvent(ctx context.Context, exec txcontext.Executor, e *models.Event) (bool, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal event payload: %w", err)
	}
	query := `
		INSERT INTO rollover_events (
			transfer_id, id, event_type, occurred_at, actor_id,
			actor_custodian_id, correlation_id, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transfer_id, id) DO NOTHING
		RETURNING seq
	`
	err = exec.QueryRowContext(ctx, query,
		string(e.TransferID),
		string(e.ID),
		string(e.Type),
		e.Timestamp,
		string(e.ActorID),
		string(e.ActorCustodianID),
		e.CorrelationID,
		payload,
	).Scan(&e.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return true, nil
}

func (s *Store) insertOutbox(ctx context.Context, exec txcontext.Executor, e models.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = exec.ExecContext(ctx, query,
		uuid.New(),
		"transfer",
		string(e.TransferID),
		string(e.Type),
		body,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListForTransfer returns the events of a transfer ordered by timestamp and sequence.
func (s *Store) ListForTransfer(ctx context.Context, transferID id.TransferID) ([]models.Event, error) {
	query := `
		SELECT seq, transfer_id, id, event_type, occurred_at, actor_id,
			   actor_custodian_id, correlation_id, payload
		FROM rollover_events
		WHERE transfer_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, string(transferID))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e          models.Event
			transfer   string
			eventID    string
			eventType  string
			actor      string
			custodian  string
			rawPayload []byte
		)
		if err := rows.Scan(
			&e.Sequence,
			&transfer,
			&eventID,
			&eventType,
			&e.Timestamp,
			&actor,
			&custodian,
			&e.CorrelationID,
			&rawPayload,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(rawPayload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload %s: %w", eventID, err)
		}
		e.TransferID = id.TransferID(transfer)
		e.ID = id.EventID(eventID)
		e.Type = models.EventType(eventType)
		e.ActorID = id.ActorID(actor)
		e.ActorCustodianID = id.CustodianID(custodian)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Transfers lists every transfer with at least one event.
func (s *Store) Transfers(ctx context.Context) ([]id.TransferID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT transfer_id FROM rollover_events ORDER BY transfer_id`)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()
	var out []id.TransferID
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, id.TransferID(t))
	}
	return out, rows.Err()
}
