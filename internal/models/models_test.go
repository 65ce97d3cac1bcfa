package models

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseMediaType(t *testing.T) {
	tc := []struct {
		in      string
		want    MediaType
		wantErr bool
	}{
		{in: "", want: MediaTracks},
		{in: "tracks", want: MediaTracks},
		{in: " Artists ", want: MediaArtists},
		{in: "ALBUMS", want: MediaAlbums},
		{in: "genres", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMediaType(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMediaType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}

	if MediaAlbums.Singular() != "album" {
		t.Errorf("expected album, got %s", MediaAlbums.Singular())
	}
}

func TestReportRow(t *testing.T) {
	t.Run("Record follows header order", func(t *testing.T) {
		date := time.Date(1997, 5, 21, 0, 0, 0, 0, time.UTC)
		row := ReportRow{
			PlaylistName:      "Mix",
			TrackName:         "Airbag",
			ArtistName:        "Radiohead",
			AlbumName:         "OK Computer",
			AlbumReleaseDate:  &date,
			PlaylistSpotifyID: "p1",
			TrackSpotifyID:    "t1",
			ArtistSpotifyID:   "a1",
			AlbumSpotifyID:    "al1",
		}

		want := []string{"Mix", "Airbag", "Radiohead", "OK Computer", "1997-05-21", "p1", "t1", "a1", "al1"}
		if diff := cmp.Diff(want, row.Record()); diff != "" {
			t.Errorf("Record() mismatch (-want +got):\n%s", diff)
		}
		if len(row.Record()) != len(ReportHeader) {
			t.Errorf("expected %d cells, got %d", len(ReportHeader), len(row.Record()))
		}
	})

	t.Run("missing release date is empty", func(t *testing.T) {
		if got := (ReportRow{}).Record()[4]; got != "" {
			t.Errorf("expected empty date cell, got %q", got)
		}
	})
}

func TestLibraryValidate(t *testing.T) {
	valid := Library{
		UserID:    "alice",
		Playlists: []Playlist{{SpotifyID: "p1", UserID: "alice", Name: "Mix"}},
		Artists:   []Artist{{SpotifyID: "a1", Name: "Radiohead"}},
		Albums:    []Album{{SpotifyID: "al1", Name: "OK Computer"}},
		Tracks:    []Track{{SpotifyID: "t1", PlaylistID: "p1", Name: "Airbag"}},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid library, got %v", err)
	}

	tc := map[string]func(*Library){
		"missing user":        func(l *Library) { l.UserID = "" },
		"playlist without id": func(l *Library) { l.Playlists = []Playlist{{UserID: "alice"}} },
		"artist without id":   func(l *Library) { l.Artists = []Artist{{Name: "x"}} },
		"album without id":    func(l *Library) { l.Albums = []Album{{Name: "x"}} },
		"orphan track":        func(l *Library) { l.Tracks = []Track{{SpotifyID: "t1"}} },
	}
	for name, mutate := range tc {
		t.Run(name, func(t *testing.T) {
			lib := valid
			mutate(&lib)
			if err := lib.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("expected nil for empty string")
	}
	if p := StringPtr("a1"); p == nil || *p != "a1" {
		t.Errorf("expected pointer to a1, got %v", p)
	}
}
