// Package reporting renders a patient's diary analysis as a human-readable
// report for export.
package reporting

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return echo.MIMETextPlainCharsetUTF8
}

// Write renders res in format f.
func Write(w io.Writer, f Format, res *analysis.Result) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, res)
	default:
		return writeText(w, res)
	}
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optGrams(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func eventRow(e *diary.Event) []string {
	return []string{
		e.OccurredOn,
		e.OccurredAt,
		string(e.Kind),
		optInt(e.VolumeMl),
		optInt(e.Urgency),
		e.EffectiveSeverity(),
		optGrams(e.LeakageWeightGrams),
		optStr(e.Trigger),
		optStr(e.IntakeType),
		e.Provenance,
		optStr(e.Notes),
	}
}

var eventHeader = []string{
	"date", "time", "kind", "volume_ml", "urgency", "severity",
	"leakage_weight_g", "trigger", "intake_type", "provenance", "notes",
}

func writeText(w io.Writer, res *analysis.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	s := res.Stats

	fmt.Fprintf(tw, "Bladder diary report\n")
	fmt.Fprintf(tw, "Patient:\t%s\n", res.PatientID)
	if res.From != "" || res.To != "" {
		fmt.Fprintf(tw, "Period:\t%s to %s\n", res.From, res.To)
	}
	fmt.Fprintf(tw, "Generated:\t%s\n\n", res.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(tw, "Summary\n")
	fmt.Fprintf(tw, "Days logged:\t%d\n", s.UniqueDays)
	fmt.Fprintf(tw, "Voids:\t%d (%.1f per day)\n", s.TotalVoids, s.AvgVoidsPerDay)
	fmt.Fprintf(tw, "Day / night voids:\t%d / %d (day %02d:00-%02d:00)\n",
		s.DayVoids, s.NightVoids, res.DayWindow.StartHour, res.DayWindow.EndHour)
	fmt.Fprintf(tw, "Voided volume median / min / max:\t%d / %d / %d ml\n", s.MedianVolume, s.MinVolume, s.MaxVolume)
	fmt.Fprintf(tw, "Total intake:\t%d ml\n", s.TotalIntake)
	fmt.Fprintf(tw, "Leakages:\t%d (%.1f per day, %.1f g total)\n", s.TotalLeakages, s.AvgLeakagesPerDay, s.TotalLeakageWeight)
	fmt.Fprintf(tw, "Data completeness:\t%.0f%% (%d hours, %d days)\n\n",
		res.Sufficiency.CompletionPercent, res.Sufficiency.LoggedHours, res.Sufficiency.UniqueDays)

	fmt.Fprintf(tw, "Findings\n")
	switch res.Status {
	case analysis.StatusNoData:
		fmt.Fprintf(tw, "No diary entries recorded.\n")
	case analysis.StatusInsufficient:
		fmt.Fprintf(tw, "Not enough data yet: log at least %d hours or %d days.\n",
			analysis.MinLoggedHours, analysis.MinUniqueDays)
	default:
		for _, p := range res.Patterns {
			fmt.Fprintf(tw, "- %s\t[%s]\n", p.Name, p.Probability)
			fmt.Fprintf(tw, "  %s\n", p.Reasoning)
			fmt.Fprintf(tw, "  %s\n", p.Recommendation)
		}
		for _, g := range res.Guidance {
			fmt.Fprintf(tw, "* %s: %s\n", g.Title, g.Body)
		}
	}

	fmt.Fprintf(tw, "\nEntries\n")
	fmt.Fprintln(tw, strings.Join(eventHeader, "\t"))
	for _, e := range res.Events {
		fmt.Fprintln(tw, strings.Join(eventRow(e), "\t"))
	}
	return tw.Flush()
}

// writeCSV emits the finding rows first, then the entries, each block with
// its own header line.
func writeCSV(w io.Writer, res *analysis.Result) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"section", "name", "probability", "reasoning", "recommendation"})
	cw.Write([]string{"status", string(res.Status), "", "", ""})
	for _, p := range res.Patterns {
		cw.Write([]string{"finding", p.Name, string(p.Probability), p.Reasoning, p.Recommendation})
	}
	cw.Write(append([]string{"section"}, eventHeader...))
	for _, e := range res.Events {
		cw.Write(append([]string{"entry"}, eventRow(e)...))
	}
	cw.Flush()
	return cw.Error()
}

// Analyzer is the analysis service as the report handler sees it.
type Analyzer interface {
	Analyze(ctx context.Context, sess auth.Session, patientID uuid.UUID, opts analysis.Options) (*analysis.Result, error)
}

// Handler provides HTTP handlers for report export.
type Handler struct {
	analyzer Analyzer
}

func NewHandler(a Analyzer) *Handler {
	return &Handler{analyzer: a}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patient_id/report", h.GetReport, auth.RequireRole(auth.AllRoles...))
}

// GetReport renders the clinician-view analysis with the raw entries.
func (h *Handler) GetReport(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	format, err := ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.analyzer.Analyze(c.Request().Context(), sess, pid, analysis.Options{
		From:     c.QueryParam("from"),
		To:       c.QueryParam("to"),
		Audience: analysis.AudienceClinician,
	})
	if err != nil {
		return diary.HTTPError(err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, format.ContentType())
	if format == FormatCSV {
		resp.Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="diary-%s.csv"`, pid))
	}
	resp.WriteHeader(http.StatusOK)
	return Write(resp, format, res)
}
