package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) ProcessBatch(ctx context.Context, limit int, publish func(ctx context.Context, records []Record) error) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := fetchUnpublished(ctx, tx, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished events: %w", err)
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	if err := publish(ctx, records); err != nil {
		return 0, fmt.Errorf("publish %d events: %w", len(records), err)
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	if err := markPublished(ctx, tx, ids); err != nil {
		return 0, fmt.Errorf("mark events published: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(records), nil
}

// fetchUnpublished skips rows another relay instance already holds.
func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, appointment_id, aggregate_id, COALESCE(payload::text, '{}'), created_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r       Record
			payload string
		)
		if err := rows.Scan(&r.ID, &r.EventType, &r.AppointmentID, &r.AggregateID, &payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Payload = []byte(payload)
		records = append(records, r)
	}
	return records, rows.Err()
}

func markPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE event_logs
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
