package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
)

func TestProfileUpsert(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	repo := analysis.NewProfileRepoPG(pool)
	pid := uuid.New()

	if _, err := repo.GetProfile(ctx, pid); !errors.Is(err, analysis.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	if err := repo.UpsertProfile(ctx, &analysis.Profile{PatientID: pid, DisplayName: "Kari"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpsertProfile(ctx, &analysis.Profile{PatientID: pid, DisplayName: "Ola", NationalID: "15078512323"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetProfile(ctx, pid)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.DisplayName != "Ola" || got.Sex() != analysis.SexMale {
		t.Errorf("unexpected profile %+v", got)
	}
}

func TestAnalysisAgainstPostgres(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	diarySvc, events := newDiaryService(pool)
	profiles := analysis.NewProfileRepoPG(pool)
	svc := analysis.NewService(events, profiles, analysis.DefaultDayWindow, zerolog.Nop())

	pid := seedDiary(t, diarySvc,
		void("2024-03-05", "09:00", 300), void("2024-03-05", "01:00", 300), void("2024-03-05", "03:00", 300),
		void("2024-03-06", "09:00", 300), void("2024-03-06", "02:00", 300), void("2024-03-06", "04:00", 300),
	)
	if err := svc.SaveProfile(ctx, clinician, &analysis.Profile{PatientID: pid, NationalID: "15078512323"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	res, err := svc.Analyze(ctx, clinician, pid, analysis.Options{Audience: analysis.AudienceClinician})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != analysis.StatusOK {
		t.Fatalf("expected ok, got %s", res.Status)
	}
	if res.Stats.NightVoids != 4 || res.Stats.UniqueDays != 2 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
	if len(res.Guidance) == 0 {
		t.Error("expected nocturia guidance for a male profile")
	}
}
