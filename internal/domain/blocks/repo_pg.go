package blocks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teresarei/uro-insights-66-sub000/internal/platform/db"
)

type blockRepoPG struct{ pool *pgxpool.Pool }

func NewBlockRepoPG(pool *pgxpool.Pool) Repository {
	return &blockRepoPG{pool: pool}
}

func (r *blockRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const blockCols = `id, patient_id, window_start, window_end, status, event_count, fingerprint,
	stats, sufficiency, patterns, created_at, updated_at`

func (r *blockRepoPG) scanBlock(row pgx.Row) (*RecordingBlock, error) {
	var b RecordingBlock
	var stats, sufficiency, patterns []byte
	if err := row.Scan(&b.ID, &b.PatientID, &b.WindowStart, &b.WindowEnd, &b.Status, &b.EventCount,
		&b.Fingerprint, &stats, &sufficiency, &patterns, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stats, &b.Stats); err != nil {
		return nil, fmt.Errorf("decode block stats: %w", err)
	}
	if err := json.Unmarshal(sufficiency, &b.Sufficiency); err != nil {
		return nil, fmt.Errorf("decode block sufficiency: %w", err)
	}
	if err := json.Unmarshal(patterns, &b.Patterns); err != nil {
		return nil, fmt.Errorf("decode block patterns: %w", err)
	}
	return &b, nil
}

func (r *blockRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*RecordingBlock, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+blockCols+` FROM recording_block WHERE patient_id = $1 ORDER BY window_start DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*RecordingBlock
	for rows.Next() {
		b, err := r.scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *blockRepoPG) Upsert(ctx context.Context, b *RecordingBlock) error {
	stats, err := json.Marshal(b.Stats)
	if err != nil {
		return err
	}
	sufficiency, err := json.Marshal(b.Sufficiency)
	if err != nil {
		return err
	}
	patterns, err := json.Marshal(b.Patterns)
	if err != nil {
		return err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO recording_block (id, patient_id, window_start, window_end, status, event_count,
			fingerprint, stats, sufficiency, patterns)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (patient_id, window_start) DO UPDATE SET
			status = EXCLUDED.status,
			event_count = EXCLUDED.event_count,
			fingerprint = EXCLUDED.fingerprint,
			stats = EXCLUDED.stats,
			sufficiency = EXCLUDED.sufficiency,
			patterns = EXCLUDED.patterns,
			updated_at = NOW()
		RETURNING id, window_end, created_at, updated_at`,
		b.ID, b.PatientID, b.WindowStart, b.WindowEnd, b.Status, b.EventCount,
		b.Fingerprint, stats, sufficiency, patterns,
	).Scan(&b.ID, &b.WindowEnd, &b.CreatedAt, &b.UpdatedAt)
}

// Locked serializes segmentation per patient with a transaction-scoped
// advisory lock, so concurrent requests never create overlapping blocks.
func (r *blockRepoPG) Locked(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := db.LockPatient(ctx, r.conn(ctx), patientID.String()); err != nil {
			return err
		}
		return fn(ctx)
	})
}
