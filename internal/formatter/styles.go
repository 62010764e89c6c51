package formatter

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/scrobblex/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a small stylesheet of named [lipgloss.Style] values for terminal listings.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

func NewPalette(t, s, e, w, m string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		muted: NewEm(m),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Title renders a heading.
func Title(s string) string {
	return styles.title.Render(s)
}

func paintStatus(status string) string {
	switch status {
	case "processed":
		return styles.ok.Render(status)
	case "errored":
		return styles.err.Render(status)
	case "pending":
		return styles.warn.Render(status)
	default:
		return styles.muted.Render(status)
	}
}

func paintKind(kind string) string {
	if kind == string(models.ErrorKindSeries) {
		return styles.err.Render(kind)
	}
	return styles.warn.Render(kind)
}
