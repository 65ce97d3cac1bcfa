// package formatter renders report data as CSV, JSON and bar charts
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/spotalytics/internal/models"
)

const (
	// MaxLabelLength is the longest chart label kept as is.
	MaxLabelLength = 14
	// DefaultBarWidth is the width of the longest bar in a chart.
	DefaultBarWidth = 40
)

// WriteReportCSV writes rows with a [models.ReportHeader] header line.
func WriteReportCSV(w io.Writer, rows []models.ReportRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(models.ReportHeader); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range rows {
		if err := writer.Write(row.Record()); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// ExportToCSV converts report rows to CSV.
func ExportToCSV(rows []models.ReportRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteReportCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFilename is the default file name of a user's CSV export.
func ExportFilename(userID string) string {
	return userID + "_playlists.csv"
}

// WriteCSVExport writes rows to path, defaulting to [ExportFilename] in the working directory.
func WriteCSVExport(rows []models.ReportRow, userID, path string) (string, error) {
	if path == "" {
		path = ExportFilename(userID)
	}

	data, err := ExportToCSV(rows)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}
	return path, nil
}

// FrequencyCSV renders a frequency report as name,count CSV.
func FrequencyCSV(freqs []models.Frequency) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"name", "count"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, f := range freqs {
		if err := writer.Write([]string{f.Name, strconv.FormatInt(f.Count, 10)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ToJSON marshals v with two-space indentation and a trailing newline.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// FrequencyJSON renders a frequency report as a JSON array, never null.
func FrequencyJSON(freqs []models.Frequency) ([]byte, error) {
	if freqs == nil {
		freqs = []models.Frequency{}
	}
	return ToJSON(freqs)
}

// ShortenLabel keeps labels up to [MaxLabelLength] runes and cuts longer ones to 13 runes plus "...".
func ShortenLabel(name string) string {
	if utf8.RuneCountInString(name) <= MaxLabelLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxLabelLength-1]) + "..."
}

// ChartTitle is the heading of a top-N chart.
func ChartTitle(userID string, media models.MediaType, n int) string {
	return fmt.Sprintf("Top %d %s for %s", n, media, userID)
}

type chartRow struct {
	label string
	bar   int
	count int64
}

// layout computes padded labels and bar lengths scaled so the largest count spans width.
func layout(freqs []models.Frequency, width int) ([]chartRow, int) {
	if width <= 0 {
		width = DefaultBarWidth
	}

	var peak int64
	pad := 0
	for _, f := range freqs {
		peak = max(peak, f.Count)
		pad = max(pad, utf8.RuneCountInString(ShortenLabel(f.Name)))
	}

	rows := make([]chartRow, 0, len(freqs))
	for _, f := range freqs {
		bar := 0
		if peak > 0 && f.Count > 0 {
			bar = max(1, int(f.Count*int64(width)/peak))
		}
		rows = append(rows, chartRow{label: ShortenLabel(f.Name), bar: bar, count: f.Count})
	}
	return rows, pad
}

// BarChart renders a plain-text horizontal bar chart, one row per entry in the given order.
func BarChart(title string, freqs []models.Frequency, width int) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")

	if len(freqs) == 0 {
		b.WriteString("(no data)\n")
		return b.String()
	}

	rows, pad := layout(freqs, width)
	for _, r := range rows {
		fmt.Fprintf(&b, "%s | %s %d\n", padRight(r.label, pad), strings.Repeat("█", r.bar), r.count)
	}
	return b.String()
}

var (
	chartTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1DB954")).MarginBottom(1)
	chartLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	chartBarStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1DB954"))
	chartCountStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// StyledBarChart renders the same chart as [BarChart] with terminal colors.
func StyledBarChart(title string, freqs []models.Frequency, width int) string {
	lines := []string{chartTitleStyle.Render(title)}

	if len(freqs) == 0 {
		lines = append(lines, chartCountStyle.Render("(no data)"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows, pad := layout(freqs, width)
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			chartLabelStyle.Render(padRight(r.label, pad)),
			chartBarStyle.Render(strings.Repeat("█", r.bar)),
			chartCountStyle.Render(strconv.FormatInt(r.count, 10)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
