package ui

import "github.com/charmbracelet/lipgloss"

// Colors names the hex foregrounds of a [Palette].
type Colors struct {
	Accent  string
	Success string
	Failure string
	Warning string
	Muted   string
}

// SpotifyColors is the default scheme, built around Spotify green.
var SpotifyColors = Colors{
	Accent:  "#1DB954",
	Success: "#04B575",
	Failure: "#E22134",
	Warning: "#FFA42B",
	Muted:   "#727272",
}

var styles = NewPalette(SpotifyColors)

// Palette holds the rendered styles used by every view.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(c Colors) *Palette {
	fg := func(hex string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(hex))
	}
	return &Palette{
		title: fg(c.Accent).Bold(true).MarginBottom(1),
		ok:    fg(c.Success).Bold(true),
		err:   fg(c.Failure).Bold(true),
		warn:  fg(c.Warning),
		help:  fg(c.Muted).Italic(true),
	}
}
