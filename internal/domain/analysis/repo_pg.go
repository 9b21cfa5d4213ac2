package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teresarei/uro-insights-66-sub000/internal/platform/db"
)

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *profileRepoPG) GetProfile(ctx context.Context, patientID uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT patient_id, COALESCE(display_name, ''), COALESCE(national_id, '')
		FROM patient_profile WHERE patient_id = $1`, patientID,
	).Scan(&p.PatientID, &p.DisplayName, &p.NationalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) UpsertProfile(ctx context.Context, p *Profile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_profile (patient_id, display_name, national_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		ON CONFLICT (patient_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			national_id = EXCLUDED.national_id,
			updated_at = NOW()`,
		p.PatientID, p.DisplayName, p.NationalID)
	return err
}
