package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/teresarei/uro-insights-66-sub000/internal/config"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/blocks"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
)

// diaryFile is the offline input: either a bare array of events or an
// object carrying an optional profile next to the events.
type diaryFile struct {
	Profile *analysis.Profile `json:"profile,omitempty"`
	Events  []*diary.Event    `json:"events"`
}

type analyzeOutput struct {
	Analysis *analysis.Result        `json:"analysis"`
	Blocks   []*blocks.RecordingBlock `json:"blocks"`
}

func decodeDiary(raw []byte) (*diaryFile, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	f := &diaryFile{}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &f.Events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return f, nil
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("decode diary: %w", err)
	}
	return f, nil
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a diary exported as JSON without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			audienceFlag, _ := cmd.Flags().GetString("audience")

			audience, err := analysis.ParseAudience(audienceFlag)
			if err != nil {
				return err
			}
			cfg, err := config.LoadWithoutDatabase()
			if err != nil {
				return err
			}
			if cfg.DayStartHour < 0 || cfg.DayEndHour > 24 || cfg.DayStartHour >= cfg.DayEndHour {
				return fmt.Errorf("invalid day window %d-%d", cfg.DayStartHour, cfg.DayEndHour)
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Env, cmd.ErrOrStderr()).Level(zerolog.WarnLevel)
			out, err := analyzeDiary(cmd.Context(), raw, audience, dayWindow(cfg), cfg.BlockDuration(), logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().String("file", "-", "Path to a diary JSON file, - for stdin")
	cmd.Flags().String("audience", "patient", "Pattern audience: patient or clinician")
	return cmd
}

// analyzeDiary runs the same services the API uses against in-memory
// storage. Events are validated exactly as they would be on upload.
func analyzeDiary(ctx context.Context, raw []byte, audience analysis.Audience, window analysis.DayWindow, blockDuration time.Duration, logger zerolog.Logger) (*analyzeOutput, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	in, err := decodeDiary(raw)
	if err != nil {
		return nil, err
	}

	pid := uuid.New()
	if in.Profile != nil {
		if in.Profile.PatientID != uuid.Nil {
			pid = in.Profile.PatientID
		}
		in.Profile.PatientID = pid
	}
	sess := auth.Session{UserID: "cli", Roles: []string{auth.RoleAdmin}}

	events := diary.NewMemoryRepository()
	diarySvc := diary.NewService(events, changefeed.Nop{}, logger)
	if len(in.Events) > 0 {
		if err := diarySvc.CreateMany(ctx, sess, pid, in.Events); err != nil {
			return nil, err
		}
	}
	all, err := diarySvc.All(ctx, sess, pid, diary.Filter{})
	if err != nil {
		return nil, err
	}

	res := analysis.Run(all, in.Profile, window, audience)
	res.PatientID = pid
	res.GeneratedAt = time.Now().UTC()

	blockSvc := blocks.NewService(blocks.NewMemoryRepository(), events, blockDuration, window, logger)
	segmented, err := blockSvc.Segment(ctx, sess, pid)
	if err != nil {
		return nil, err
	}
	return &analyzeOutput{Analysis: res, Blocks: segmented}, nil
}
