package diary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teresarei/uro-insights-66-sub000/internal/platform/db"
)

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) Repository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const eventCols = `id, patient_id, occurred_on::text, occurred_at::text, kind, volume_ml, urgency,
	leakage_severity, dry_pad_weight_g, wet_pad_weight_g, leakage_weight_g, trigger,
	intake_type, notes, provenance, confidence, created_at, updated_at`

func (r *eventRepoPG) scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.PatientID, &e.OccurredOn, &e.OccurredAt, &e.Kind, &e.VolumeMl, &e.Urgency,
		&e.LeakageSeverity, &e.DryPadWeightGrams, &e.WetPadWeightGrams, &e.LeakageWeightGrams, &e.Trigger,
		&e.IntakeType, &e.Notes, &e.Provenance, &e.Confidence, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.OccurredAt = strings.TrimSuffix(e.OccurredAt, ":00")
	return &e, nil
}

func (r *eventRepoPG) insert(ctx context.Context, q db.Queryable, e *Event) error {
	e.ID = uuid.New()
	return q.QueryRow(ctx, `
		INSERT INTO diary_event (id, patient_id, occurred_on, occurred_at, kind, volume_ml, urgency,
			leakage_severity, dry_pad_weight_g, wet_pad_weight_g, leakage_weight_g, trigger,
			intake_type, notes, provenance, confidence)
		VALUES ($1,$2,$3::date,$4::time,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		e.ID, e.PatientID, e.OccurredOn, e.OccurredAt, e.Kind, e.VolumeMl, e.Urgency,
		e.LeakageSeverity, e.DryPadWeightGrams, e.WetPadWeightGrams, e.LeakageWeightGrams, e.Trigger,
		e.IntakeType, e.Notes, e.Provenance, e.Confidence,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *eventRepoPG) Create(ctx context.Context, e *Event) error {
	return r.insert(ctx, r.conn(ctx), e)
}

// CreateMany inserts all events in one transaction; either every row is
// persisted with its server-assigned id or none is.
func (r *eventRepoPG) CreateMany(ctx context.Context, events []*Event) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		for i, e := range events {
			if err := r.insert(ctx, q, e); err != nil {
				return fmt.Errorf("insert event %d: %w", i, err)
			}
		}
		return nil
	})
}

func (r *eventRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	return r.scanEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM diary_event WHERE id = $1`, id))
}

func (r *eventRepoPG) Update(ctx context.Context, e *Event) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diary_event SET occurred_on=$2::date, occurred_at=$3::time, kind=$4, volume_ml=$5,
			urgency=$6, leakage_severity=$7, dry_pad_weight_g=$8, wet_pad_weight_g=$9,
			leakage_weight_g=$10, trigger=$11, intake_type=$12, notes=$13, provenance=$14,
			confidence=$15, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.OccurredOn, e.OccurredAt, e.Kind, e.VolumeMl,
		e.Urgency, e.LeakageSeverity, e.DryPadWeightGrams, e.WetPadWeightGrams,
		e.LeakageWeightGrams, e.Trigger, e.IntakeType, e.Notes, e.Provenance,
		e.Confidence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diary_event WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// filterClause renders f as a WHERE clause starting at placeholder $2
// ($1 is always the patient id).
func filterClause(patientID uuid.UUID, f Filter) (string, []interface{}) {
	where := []string{"patient_id = $1"}
	args := []interface{}{patientID}
	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("occurred_on >= $%d::date", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("occurred_on <= $%d::date", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

const eventOrder = ` ORDER BY occurred_on, occurred_at, created_at`

func (r *eventRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter, limit, offset int) ([]*Event, int, error) {
	where, args := filterClause(patientID, f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diary_event`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + eventCols + ` FROM diary_event` + where + eventOrder +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *eventRepoPG) AllByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]*Event, error) {
	where, args := filterClause(patientID, f)
	return r.query(ctx, `SELECT `+eventCols+` FROM diary_event`+where+eventOrder, args...)
}

func (r *eventRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
