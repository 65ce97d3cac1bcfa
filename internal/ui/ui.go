package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	SyncView
	ResultView
)

// Library reads the mirrored library. Implemented by [repositories.LibraryRepository].
type Library interface {
	Playlists(ctx context.Context, userID string) ([]models.Playlist, error)
	TracksForPlaylist(ctx context.Context, playlistID string) ([]models.Track, error)
	Artist(ctx context.Context, id string) (*models.Artist, error)
}

// Syncer runs a library sync. Implemented by [tasks.SyncEngine].
type Syncer interface {
	Run(ctx context.Context, userID string, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	userID       string
	library      Library
	syncer       Syncer
	width        int
	height       int
	playlistList list.Model
	trackList    list.Model
	selected     playlistItem
	progressChan chan tasks.ProgressUpdate
	syncDone     chan syncComplete
	progress     tasks.ProgressUpdate
	result       *tasks.SyncResult
	err          error
	spinner      spinner.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model browsing userID's library. A nil syncer disables syncing.
func NewModel(ctx context.Context, userID string, library Library, syncer Syncer) *Model {
	return &Model{
		ctx:          ctx,
		view:         PlaylistListView,
		userID:       userID,
		library:      library,
		syncer:       syncer,
		playlistList: newList(nil, "Playlists"),
		trackList:    newList(nil, "Tracks"),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	return l
}

// Init initializes the TUI by loading the stored playlists.
func (m *Model) Init() tea.Cmd {
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(m.listSize())
		m.trackList.SetSize(m.listSize())
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(data.items))
		for i, it := range data.items {
			items[i] = it
		}
		m.playlistList = newList(items, fmt.Sprintf("Playlists of %s", m.userID))
		m.playlistList.SetSize(m.listSize())
		m.view = PlaylistListView
		return m, nil

	case MsgTracksFetched:
		data := msg.data.(tracksFetched)
		if data.err != nil {
			m.err = data.err
			m.view = PlaylistListView
			return m, nil
		}
		m.selected = data.playlist
		items := make([]list.Item, len(data.items))
		for i, it := range data.items {
			items[i] = it
		}
		m.trackList = newList(items, fmt.Sprintf("Tracks in '%s'", data.playlist.playlist.Name))
		m.trackList.SetSize(m.listSize())
		m.view = TrackListView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.result = data.result
		m.err = data.err
		if data.result != nil && data.result.UserID != "" {
			m.userID = data.result.UserID
		}
		m.progressChan = nil
		m.syncDone = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) listSize() (int, int) {
	return max(m.width-4, 0), max(m.height-8, 0)
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.sync):
			if m.syncer != nil {
				m.view = ConfirmView
			}
			return m, nil
		case key.Matches(msg, m.keys.enter):
			if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
				return m, m.fetchTracks(pl)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.back):
			m.view = PlaylistListView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.no), msg.String() == "q":
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		m.progress = tasks.ProgressUpdate{}
		return m, tea.Batch(m.spinner.Tick, m.startSync())
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.result = nil
		m.err = nil
		m.view = PlaylistListView
		return m, m.fetchPlaylists()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	userID := m.userID
	return func() tea.Msg {
		playlists, err := m.library.Playlists(m.ctx, userID)
		if err != nil {
			return playlistsFetchedMsg(nil, err)
		}

		items := make([]playlistItem, len(playlists))
		for i, pl := range playlists {
			tracks, err := m.library.TracksForPlaylist(m.ctx, pl.SpotifyID)
			if err != nil {
				return playlistsFetchedMsg(nil, err)
			}
			items[i] = playlistItem{playlist: pl, tracks: len(tracks)}
		}
		return playlistsFetchedMsg(items, nil)
	}
}

func (m *Model) fetchTracks(pl playlistItem) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.library.TracksForPlaylist(m.ctx, pl.playlist.SpotifyID)
		if err != nil {
			return tracksFetchedMsg(pl, nil, err)
		}

		artists := make(map[string]string)
		items := make([]trackItem, len(tracks))
		for i, t := range tracks {
			item := trackItem{track: t}
			if t.ArtistID != nil {
				name, seen := artists[*t.ArtistID]
				if !seen {
					if a, err := m.library.Artist(m.ctx, *t.ArtistID); err == nil {
						name = a.Name
					}
					artists[*t.ArtistID] = name
				}
				item.artist = name
			}
			items[i] = item
		}
		return tracksFetchedMsg(pl, items, nil)
	}
}

func (m *Model) startSync() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.syncDone = make(chan syncComplete, 1)

	progress, done, userID := m.progressChan, m.syncDone, m.userID
	go func() {
		result, err := m.syncer.Run(m.ctx, userID, progress)
		done <- syncComplete{result: result, err: err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.syncDone
	return func() tea.Msg {
		if progress == nil {
			return syncCompleteMsg(m.result, m.err)
		}

		update, ok := <-progress
		if !ok {
			out := <-done
			return syncCompleteMsg(out.result, out.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderPlaylistList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	if m.syncer != nil {
		helpKeys = []key.Binding{m.keys.enter, m.keys.sync, m.keys.quit}
	}
	helpView := m.help.ShortHelpView(helpKeys)
	if len(m.playlistList.Items()) == 0 {
		empty := styles.help.Render(fmt.Sprintf("No playlists stored for %q yet.", m.userID))
		return fmt.Sprintf("%s\n\n%s", empty, helpView)
	}
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	who := m.userID
	if who == "" {
		who = "the authorized user"
	}
	title := styles.title.Render(fmt.Sprintf("Sync the library of %s from Spotify?", who))
	info := styles.warn.Render("\nStored playlists of this user will be replaced.\n")

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing Library")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchUser:
		phase = "Resolving the current user..."
	case tasks.FetchPlaylists:
		phase = "Fetching playlists..."
	case tasks.FetchTracks:
		phase = fmt.Sprintf("Fetching tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.StoreLibrary:
		phase = "Storing library..."
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s %s\n%s", title, m.spinner.View(), phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sync failed: %v\n\nPress r to go back, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to go back, q to quit")
	}

	title := styles.ok.Render("✓ Sync Complete!")
	info := fmt.Sprintf(
		"\nUser: %s\nPlaylists: %d\nTracks: %d\nArtists: %d (%d new)\nAlbums: %d (%d new)\nDuration: %s",
		m.result.UserID,
		m.result.Playlists,
		m.result.Tracks,
		m.result.Artists,
		m.result.Inserted.Artists,
		m.result.Albums,
		m.result.Inserted.Albums,
		m.result.Duration.Round(time.Millisecond),
	)

	var skipped string
	if m.result.Skipped > 0 {
		skipped = fmt.Sprintf("\n\n%s", styles.warn.Render(fmt.Sprintf("Skipped %d local files or episodes", m.result.Skipped)))
	}

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, skipped, helpView)
}
