package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// PostgresStore persists submissions with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Record(ctx context.Context, sub Submission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	query := `
		INSERT INTO chain_submissions (
			id, transfer_id, action, custodian_id, attempt, result,
			error_class, tx_hash, block_number, detail, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		sub.ID,
		string(sub.TransferID),
		string(sub.Action),
		string(sub.CustodianID),
		sub.Attempt,
		string(sub.Result),
		sub.ErrorClass,
		sub.TxHash,
		int64(sub.BlockNumber),
		sub.Detail,
		sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListForTransfer(ctx context.Context, transferID id.TransferID) ([]Submission, error) {
	query := `
		SELECT id, transfer_id, action, custodian_id, attempt, result,
			   error_class, tx_hash, block_number, detail, created_at
		FROM chain_submissions
		WHERE transfer_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, string(transferID))
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Submission, error) {
		var (
			sub         Submission
			transfer    string
			action      string
			custodian   string
			result      string
			blockNumber int64
		)
		err := row.Scan(
			&sub.ID,
			&transfer,
			&action,
			&custodian,
			&sub.Attempt,
			&result,
			&sub.ErrorClass,
			&sub.TxHash,
			&blockNumber,
			&sub.Detail,
			&sub.CreatedAt,
		)
		sub.TransferID = id.TransferID(transfer)
		sub.Action = models.ActionType(action)
		sub.CustodianID = id.CustodianID(custodian)
		sub.Result = Result(result)
		sub.BlockNumber = uint64(blockNumber)
		return sub, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}
	return subs, nil
}
