package formatter

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spotalytics/internal/models"
	th "github.com/desertthunder/spotalytics/internal/testing"
)

func sampleRows() []models.ReportRow {
	released := time.Date(1997, 5, 21, 0, 0, 0, 0, time.UTC)
	return []models.ReportRow{
		{
			PlaylistName:      "Road Trip",
			TrackName:         "Paranoid Android",
			ArtistName:        "Radiohead",
			AlbumName:         "OK Computer",
			AlbumReleaseDate:  &released,
			PlaylistSpotifyID: "p1",
			TrackSpotifyID:    "t1",
			ArtistSpotifyID:   "ar1",
			AlbumSpotifyID:    "al1",
		},
		{
			PlaylistName:      "Road Trip",
			TrackName:         "Hello, Goodbye",
			ArtistName:        "The Beatles",
			AlbumName:         "Magical Mystery Tour",
			PlaylistSpotifyID: "p1",
			TrackSpotifyID:    "t2",
			ArtistSpotifyID:   "ar2",
			AlbumSpotifyID:    "al2",
		},
	}
}

func sampleFrequencies() []models.Frequency {
	return []models.Frequency{
		{SpotifyID: "t1", Name: "Everything In Its Right Place", Count: 4},
		{SpotifyID: "t2", Name: "Airbag", Count: 2},
		{SpotifyID: "t3", Name: "Let Down", Count: 1},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleRows())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if lines[0] != strings.Join(models.ReportHeader, ",") {
			t.Errorf("CSV header mismatch, got: %s", lines[0])
		}
		if lines[1] != "Road Trip,Paranoid Android,Radiohead,OK Computer,1997-05-21,p1,t1,ar1,al1" {
			t.Errorf("unexpected first row: %s", lines[1])
		}
		if lines[2] != `Road Trip,"Hello, Goodbye",The Beatles,Magical Mystery Tour,,p1,t2,ar2,al2` {
			t.Errorf("expected quoted name and empty date, got: %s", lines[2])
		}
	})

	t.Run("ExportToCSV without rows", func(t *testing.T) {
		data, err := ExportToCSV(nil)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if strings.TrimSpace(string(data)) != strings.Join(models.ReportHeader, ",") {
			t.Errorf("expected header only, got: %s", data)
		}
	})

	t.Run("ExportToCSV write error", func(t *testing.T) {
		w := th.NewLimitedWriter(0, 0, io.Discard)
		if err := WriteReportCSV(&w, sampleRows()); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("FrequencyCSV", func(t *testing.T) {
		data, err := FrequencyCSV(sampleFrequencies())
		if err != nil {
			t.Fatalf("FrequencyCSV failed: %v", err)
		}
		want := "name,count\nEverything In Its Right Place,4\nAirbag,2\nLet Down,1\n"
		if string(data) != want {
			t.Errorf("expected %q, got %q", want, data)
		}
	})

	t.Run("FrequencyJSON", func(t *testing.T) {
		data, err := FrequencyJSON(sampleFrequencies()[:1])
		if err != nil {
			t.Fatalf("FrequencyJSON failed: %v", err)
		}

		var got []map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 1 || got[0]["spotify_id"] != "t1" || got[0]["count"] != float64(4) {
			t.Errorf("unexpected JSON %s", data)
		}
	})

	t.Run("FrequencyJSON empty is an array", func(t *testing.T) {
		data, err := FrequencyJSON(nil)
		if err != nil {
			t.Fatalf("FrequencyJSON failed: %v", err)
		}
		if strings.TrimSpace(string(data)) != "[]" {
			t.Errorf("expected [], got %s", data)
		}
	})
}

func TestShortenLabel(t *testing.T) {
	tc := []struct {
		in   string
		want string
	}{
		{"Airbag", "Airbag"},
		{"Exactly14Chars", "Exactly14Chars"},
		{"Fifteen chars!!", "Fifteen chars..."},
		{"Everything In Its Right Place", "Everything In..."},
		{"ÉÉÉÉÉÉÉÉÉÉÉÉÉÉÉ", "ÉÉÉÉÉÉÉÉÉÉÉÉÉ..."},
	}

	for _, tt := range tc {
		if got := ShortenLabel(tt.in); got != tt.want {
			t.Errorf("ShortenLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBarChart(t *testing.T) {
	t.Run("scales bars to width", func(t *testing.T) {
		chart := BarChart(ChartTitle("alice", models.MediaTracks, 3), sampleFrequencies(), 8)
		lines := strings.Split(strings.TrimSuffix(chart, "\n"), "\n")

		if len(lines) != 4 {
			t.Fatalf("expected title and 3 rows, got %d lines:\n%s", len(lines), chart)
		}
		if lines[0] != "Top 3 tracks for alice" {
			t.Errorf("unexpected title %q", lines[0])
		}
		if lines[1] != "Everything In... | ████████ 4" {
			t.Errorf("unexpected first row %q", lines[1])
		}
		if lines[2] != "Airbag           | ████ 2" {
			t.Errorf("unexpected second row %q", lines[2])
		}
		if lines[3] != "Let Down         | ██ 1" {
			t.Errorf("unexpected third row %q", lines[3])
		}
	})

	t.Run("small counts keep a visible bar", func(t *testing.T) {
		chart := BarChart("t", []models.Frequency{{Name: "a", Count: 100}, {Name: "b", Count: 1}}, 10)
		if !strings.Contains(chart, "b | █ 1") {
			t.Errorf("expected single block for smallest count, got:\n%s", chart)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if chart := BarChart("Top 10 tracks for bob", nil, 0); !strings.Contains(chart, "(no data)") {
			t.Errorf("expected placeholder, got %q", chart)
		}
	})

	t.Run("styled chart contains labels and counts", func(t *testing.T) {
		chart := StyledBarChart("Top 3 tracks for alice", sampleFrequencies(), 8)
		for _, want := range []string{"Top 3 tracks for alice", "Everything In...", "Airbag", "4"} {
			if !strings.Contains(chart, want) {
				t.Errorf("expected styled chart to contain %q, got:\n%s", want, chart)
			}
		}
	})
}

func TestWriters(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		t.Run("WithDefaultPath", func(t *testing.T) {
			tempDir := t.TempDir()
			originalDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, originalDir)

			path, err := WriteCSVExport(sampleRows(), "alice", "")
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if path != "alice_playlists.csv" {
				t.Errorf("expected default filename, got %s", path)
			}

			th.AssertFileExists(t, path)
			content := th.MustReadFile(t, path)
			if !strings.Contains(content, "Paranoid Android") {
				t.Errorf("CSV file missing track, got: %s", content)
			}
		})

		t.Run("WithCustomPath", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "export.csv")

			got, err := WriteCSVExport(sampleRows(), "alice", path)
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if got != path {
				t.Errorf("expected %s, got %s", path, got)
			}
			th.AssertFileExists(t, path)
		})

		t.Run("UnwritablePath", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing", "export.csv")
			if _, err := WriteCSVExport(sampleRows(), "alice", path); err == nil {
				t.Error("expected error for missing directory")
			}
		})
	})
}
