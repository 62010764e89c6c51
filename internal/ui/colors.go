package ui

import "github.com/charmbracelet/lipgloss"

var styles = newPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// palette holds the named styles of the progress view.
type palette struct {
	title  lipgloss.Style
	accent lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
}

func newPalette(title, ok, err, warn, muted string) palette {
	return palette{
		title:  bold(title).MarginBottom(1),
		accent: fg(title),
		ok:     bold(ok),
		err:    bold(err),
		warn:   fg(warn),
		muted:  fg(muted).Italic(true),
	}
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bold(color string) lipgloss.Style {
	return fg(color).Bold(true)
}
