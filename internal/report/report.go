// Package report renders located events for the command line.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown output format")

// Format selects the renderer.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// ParseFormat resolves a --format flag value. Empty means table.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTable, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of %v)", ErrUnknownFormat, s, Formats)
}

// Row is one event in a report. TruthErrorM is the distance from the fix
// to the known target position and is only set for simulated events.
type Row struct {
	locate.Result
	TruthErrorM float64
	HasTruth    bool
}

// Rows wraps plain results.
func Rows(results []locate.Result) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{Result: r}
	}
	return rows
}

// WriteFixes renders rows followed by a batch summary.
func WriteFixes(w io.Writer, format Format, rows []Row) error {
	results := make([]locate.Result, len(rows))
	for i, r := range rows {
		results[i] = r.Result
	}
	summary := locate.Summarize(results)

	if format == FormatJSON {
		return writeJSON(w, fixesDocument{Results: fixRecords(rows), Summary: summaryRecord(summary)})
	}

	withTruth := false
	for _, r := range rows {
		withTruth = withTruth || r.HasTruth
	}

	t := newTable(w)
	header := table.Row{"Event", "Time", "Stations", "Outcome", "Lat °", "Lon °", "Alt km", "Range1 km", "Range2 km", "Miss m"}
	if withTruth {
		header = append(header, "Truth err m")
	}
	t.AppendHeader(header)

	for _, r := range rows {
		row := table.Row{
			r.Event.ID,
			formatTime(r.Event.Time),
			r.Event.Primary.StationID + "/" + r.Event.Secondary.StationID,
			outcomeLabel(r.Result),
		}
		if r.Fix.Solved {
			row = append(row,
				fmt.Sprintf("%.4f", r.Fix.Target.LatitudeDeg),
				fmt.Sprintf("%.4f", r.Fix.Target.LongitudeDeg),
				fmt.Sprintf("%.3f", r.Fix.Target.AltitudeM/1000),
				fmt.Sprintf("%.3f", r.Fix.Solution.Range1/1000),
				fmt.Sprintf("%.3f", r.Fix.Solution.Range2/1000),
				fmt.Sprintf("%.2f", r.Fix.Solution.MissDistance),
			)
		} else {
			row = append(row, "-", "-", "-", "-", "-", "-")
		}
		if withTruth {
			if r.HasTruth {
				row = append(row, fmt.Sprintf("%.2f", r.TruthErrorM))
			} else {
				row = append(row, "-")
			}
		}
		t.AppendRow(row)
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d events", summary.Total),
		"",
		"",
		fmt.Sprintf("%d accepted", summary.Accepted),
		"", "", "", "", "mean",
		fmt.Sprintf("%.2f", summary.MeanMissM),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	return render(t, format)
}

// WriteSolution renders a single solve with the geodetic form of its points.
func WriteSolution(w io.Writer, format Format, sol core.Solution) error {
	mid := core.ECEFToGeodetic(sol.Midpoint)
	if format == FormatJSON {
		return writeJSON(w, solutionRecord{
			Range1M:       sol.Range1,
			Range2M:       sol.Range2,
			MissDistanceM: sol.MissDistance,
			Collinear:     sol.Collinear,
			Midpoint:      vecRecord(sol.Midpoint),
			Target:        geodeticRecord(mid),
		})
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Quantity", "Value"})
	t.AppendRows([]table.Row{
		{"Range 1 (m)", fmt.Sprintf("%.3f", sol.Range1)},
		{"Range 2 (m)", fmt.Sprintf("%.3f", sol.Range2)},
		{"Miss distance (m)", fmt.Sprintf("%.3f", sol.MissDistance)},
		{"Midpoint ECEF (m)", fmt.Sprintf("%.3f, %.3f, %.3f", sol.Midpoint.X, sol.Midpoint.Y, sol.Midpoint.Z)},
		{"Latitude (°)", fmt.Sprintf("%.6f", mid.LatitudeDeg)},
		{"Longitude (°)", fmt.Sprintf("%.6f", mid.LongitudeDeg)},
		{"Altitude (m)", fmt.Sprintf("%.3f", mid.AltitudeM)},
	})
	if sol.Collinear {
		t.AppendRow(table.Row{"Collinear", "yes"})
	}
	return render(t, format)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func render(t table.Writer, format Format) error {
	switch format {
	case FormatTable, "":
		t.Render()
	case FormatCSV:
		t.RenderCSV()
	case FormatMarkdown:
		t.RenderMarkdown()
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outcomeLabel(r locate.Result) string {
	outcome := locate.Outcome(r.Err)
	if r.Fix.Solution.Collinear {
		outcome += " (collinear)"
	}
	return outcome
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
