package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

func void(on, at string, ml, urgency int) *diary.Event {
	return &diary.Event{OccurredOn: on, OccurredAt: at, Kind: diary.KindVoid, VolumeMl: &ml, Urgency: &urgency, Provenance: "manual"}
}

func sampleResult() *analysis.Result {
	events := []*diary.Event{
		void("2024-03-05", "08:00", 300, 2),
		void("2024-03-05", "23:30", 250, 1),
		void("2024-03-06", "07:00", 320, 2),
	}
	return analysis.Run(events, nil, analysis.DefaultDayWindow, analysis.AudienceClinician)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"CSV", FormatCSV, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatText, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Bladder diary report", "Voids:", "3 (1.5 per day)", analysis.PatternNoConcerns, "2024-03-05"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\n%s", want, out)
		}
	}
}

func TestWriteText_Insufficient(t *testing.T) {
	res := analysis.Run([]*diary.Event{void("2024-03-05", "08:00", 300, 2)}, nil, analysis.DefaultDayWindow, analysis.AudienceClinician)
	var buf bytes.Buffer
	Write(&buf, FormatText, res)
	if !strings.Contains(buf.String(), "Not enough data yet") {
		t.Errorf("expected insufficient message, got\n%s", buf.String())
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	entries := 0
	findings := 0
	for _, row := range rows {
		switch row[0] {
		case "entry":
			entries++
		case "finding":
			findings++
		}
	}
	if entries != 3 {
		t.Errorf("expected 3 entry rows, got %d", entries)
	}
	if findings != 1 {
		t.Errorf("expected 1 finding row, got %d", findings)
	}
}

type stubAnalyzer struct {
	res  *analysis.Result
	err  error
	opts analysis.Options
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ auth.Session, _ uuid.UUID, opts analysis.Options) (*analysis.Result, error) {
	s.opts = opts
	return s.res, s.err
}

func TestGetReport_CSV(t *testing.T) {
	stub := &stubAnalyzer{res: sampleResult()}
	h := NewHandler(stub)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?format=csv", nil)
	req = req.WithContext(auth.WithSession(req.Context(), auth.Session{Roles: []string{auth.RolePhysician}}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv") {
		t.Errorf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if stub.opts.Audience != analysis.AudienceClinician {
		t.Errorf("expected clinician audience, got %q", stub.opts.Audience)
	}
}

func TestGetReport_Forbidden(t *testing.T) {
	h := NewHandler(&stubAnalyzer{err: auth.ErrForbidden})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithSession(req.Context(), auth.Session{Roles: []string{auth.RolePatient}}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	err := h.GetReport(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestGetReport_BadFormat(t *testing.T) {
	h := NewHandler(&stubAnalyzer{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?format=pdf", nil)
	req = req.WithContext(auth.WithSession(req.Context(), auth.Session{Roles: []string{auth.RoleAdmin}}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	err := h.GetReport(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
