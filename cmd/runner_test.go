package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/shared"
	tu "github.com/desertthunder/spotalytics/internal/testing"
	"github.com/google/go-cmp/cmp"
)

func noEnv(string) (string, bool) { return "", false }

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

type cliEnv struct {
	dir        string
	configPath string
	api        *tu.FakeSpotify
	accounts   *tu.FakeAccounts
}

func fixturePlaylists() []tu.FakePlaylist {
	alpha := tu.FakeArtist{ID: "ar1", Name: "Alpha"}
	beta := tu.FakeArtist{ID: "ar2", Name: "Beta"}
	first := tu.FakeAlbum{ID: "al1", Name: "First", ReleaseDate: "2001-02-03", Precision: "day"}
	second := tu.FakeAlbum{ID: "al2", Name: "Second", ReleaseDate: "2005", Precision: "year"}

	return []tu.FakePlaylist{
		{ID: "p1", Name: "Bravo", OwnerID: "alice", Items: []tu.FakeItem{
			{ID: "t1", Name: "Song A", Artists: []tu.FakeArtist{alpha}, Album: first},
			{ID: "t2", Name: "Song B", Artists: []tu.FakeArtist{beta}, Album: second},
			{ID: "", Name: "Local", IsLocal: true},
		}},
		{ID: "p2", Name: "Alpha Mix", OwnerID: "alice", Items: []tu.FakeItem{
			{ID: "t1", Name: "Song A", Artists: []tu.FakeArtist{alpha}, Album: first},
		}},
		{ID: "p3", Name: "Followed", OwnerID: "carol"},
	}
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	accounts := tu.NewFakeAccounts(t)
	api := tu.NewFakeSpotify(t, "alice", fixturePlaylists()...)

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "spotalytics.db")
	config.Credentials.Spotify = shared.SpotifyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:" + strconv.Itoa(freePort(t)) + "/callback",
		AuthURL:      accounts.AuthURL(),
		TokenURL:     accounts.TokenURL(),
		APIURL:       api.URL(),
	}
	config.Sync.RequestsPerSecond = 0
	config.Log.Level = "error"

	configPath := filepath.Join(dir, "config.toml")
	if err := shared.SaveConfig(configPath, config); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	return &cliEnv{dir: dir, configPath: configPath, api: api, accounts: accounts}
}

// completeAuthorization plays the browser: it follows the authorize URL straight to the callback.
func completeAuthorization(redirectURI string) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		callback := redirectURI + "?code=good&state=" + url.QueryEscape(u.Query().Get("state"))
		resp, err := http.Get(callback)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

// run executes the CLI with args against a fresh runner and returns what it printed.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	config, err := shared.LoadConfig(e.configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	var out bytes.Buffer
	runner := NewRunner(RunnerOpts{
		Logger:      log.New(io.Discard),
		Output:      &out,
		OpenBrowser: completeAuthorization(config.Credentials.Spotify.RedirectURI),
		LookupEnv:   noEnv,
	})

	root := runner.Command()
	root.Writer = io.Discard
	root.ErrWriter = io.Discard

	err = root.Run(context.Background(), append([]string{"spotalytics", "--config", e.configPath}, args...))
	return out.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil dependencies uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.openBrowser == nil || runner.lookupEnv == nil {
				t.Error("expected browser launcher and env lookup defaults")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int))
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"})
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			limited := tu.NewLimitedWriter(0, 0, io.Discard)
			runner := NewRunner(RunnerOpts{Output: &limited})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		var names []string
		for _, cmd := range commands {
			names = append(names, cmd.Name)
		}
		if diff := cmp.Diff([]string{"serve", "sync", "report", "browse", "setup"}, names); diff != "" {
			t.Errorf("commands mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file uses defaults and environment", func(t *testing.T) {
			env := map[string]string{"DATABASE_PATH": "/tmp/from-env.db", "CLIENT_ID": "env-client"}
			runner := NewRunner(RunnerOpts{
				Logger: log.New(io.Discard),
				LookupEnv: func(k string) (string, bool) {
					v, ok := env[k]
					return v, ok
				},
			})

			config, err := runner.loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if config.Database.Path != "/tmp/from-env.db" || config.Credentials.Spotify.ClientID != "env-client" {
				t.Errorf("expected environment overrides, got %+v", config)
			}
		})

		t.Run("rejects invalid settings", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			config := shared.DefaultConfig()
			config.Session.Backend = "cookie"
			if err := shared.SaveConfig(path, config); err != nil {
				t.Fatalf("failed to save config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), LookupEnv: noEnv})
			if _, err := runner.loadConfig(path); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		env := newCLIEnv(t)
		if _, err := env.run(t, "--log-level", "loud", "setup", "database"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		env := newCLIEnv(t)
		env.configPath = filepath.Join(env.dir, "fresh.toml")

		out, err := env.runWithDefaults(t, "setup", "config")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, env.configPath)
		if !strings.Contains(out, "Config written to") {
			t.Errorf("unexpected output %q", out)
		}

		if _, err := env.runWithDefaults(t, "setup", "config"); err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected existing config to be kept, got %v", err)
		}
	})

	t.Run("database and rollback", func(t *testing.T) {
		env := newCLIEnv(t)

		out, err := env.run(t, "setup", "database")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Database ready at schema version") {
			t.Errorf("unexpected output %q", out)
		}

		out, err = env.run(t, "setup", "rollback")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Rolled back migration") {
			t.Errorf("unexpected output %q", out)
		}
	})
}

// runWithDefaults runs without reading the config first, for commands that create it.
func (e *cliEnv) runWithDefaults(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: &out, LookupEnv: noEnv})

	root := runner.Command()
	root.Writer = io.Discard
	root.ErrWriter = io.Discard

	err := root.Run(context.Background(), append([]string{"spotalytics", "--config", e.configPath}, args...))
	return out.String(), err
}

func TestSyncAndReports(t *testing.T) {
	env := newCLIEnv(t)

	t.Run("reports before sync", func(t *testing.T) {
		if _, err := env.run(t, "report", "top", "--user", "alice"); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("sync", func(t *testing.T) {
		out, err := env.run(t, "sync", "--workers", "2")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		for _, want := range []string{"Synced library of alice", "Playlists: 2", "Tracks:    3", "Skipped:   1"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}

		grants := env.accounts.Grants()
		if len(grants) == 0 || grants[0].Get("grant_type") != "authorization_code" || grants[0].Get("code") != "good" {
			t.Errorf("expected an authorization_code grant, got %v", grants)
		}
	})

	t.Run("report top as JSON", func(t *testing.T) {
		out, err := env.run(t, "report", "top", "--user", "alice", "--json")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var freqs []models.Frequency
		if err := json.Unmarshal([]byte(out), &freqs); err != nil {
			t.Fatalf("failed to decode %q: %v", out, err)
		}
		want := []models.Frequency{
			{SpotifyID: "t1", Name: "Song A", Count: 2},
			{SpotifyID: "t2", Name: "Song B", Count: 1},
		}
		if diff := cmp.Diff(want, freqs); diff != "" {
			t.Errorf("top tracks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("report top as chart", func(t *testing.T) {
		out, err := env.run(t, "report", "top", "--user", "alice", "--type", "artists", "--top", "1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Top 1 artists for alice") || !strings.Contains(out, "Alpha") {
			t.Errorf("unexpected chart:\n%s", out)
		}
	})

	t.Run("report top rejects bad arguments", func(t *testing.T) {
		if _, err := env.run(t, "report", "top", "--user", "alice", "--type", "genres"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for type, got %v", err)
		}
		if _, err := env.run(t, "report", "top", "--user", "alice", "--top", "0"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for top, got %v", err)
		}
	})

	t.Run("report export", func(t *testing.T) {
		path := filepath.Join(env.dir, "export.csv")
		out, err := env.run(t, "report", "export", "--user", "alice", "--output", path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Exported 3 rows") {
			t.Errorf("unexpected output %q", out)
		}

		records, err := csv.NewReader(strings.NewReader(tu.MustReadFile(t, path))).ReadAll()
		if err != nil {
			t.Fatalf("failed to parse CSV: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("expected header and 3 rows, got %d records", len(records))
		}
		if diff := cmp.Diff(models.ReportHeader, records[0]); diff != "" {
			t.Errorf("header mismatch (-want +got):\n%s", diff)
		}
		if records[1][0] != "Alpha Mix" || records[1][4] != "2001-02-03" {
			t.Errorf("expected Alpha Mix first with its release date, got %v", records[1])
		}
	})

	t.Run("browse resolves the only user", func(t *testing.T) {
		config, err := shared.LoadConfig(env.configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		runner := NewRunner(RunnerOpts{Config: config, Logger: log.New(io.Discard)})
		db, err := runner.openDatabase()
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		userID, err := resolveBrowseUser(context.Background(), db, "")
		if err != nil || userID != "alice" {
			t.Errorf("expected alice, got %q (%v)", userID, err)
		}
		if userID, _ := resolveBrowseUser(context.Background(), db, "bob"); userID != "bob" {
			t.Errorf("expected explicit user to win, got %q", userID)
		}
	})
}

func TestResolveBrowseUser(t *testing.T) {
	runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard)})
	runner.config = shared.DefaultConfig()
	runner.config.Database.Path = ":memory:"

	db, err := runner.openDatabase()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := resolveBrowseUser(context.Background(), db, ""); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument with no synced users, got %v", err)
	}
}
