package render

import "github.com/charmbracelet/lipgloss"

// Theme 控制台色彩和样式
// Theme holds console colors and styles
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Danger    lipgloss.Color
	Warning   lipgloss.Color
	Success   lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	Border    lipgloss.Color

	TitleStyle   lipgloss.Style
	InfoStyle    lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	SuccessStyle lipgloss.Style
	MutedStyle   lipgloss.Style
	DangerStyle  lipgloss.Style
	CommandStyle lipgloss.Style
	PanelStyle   lipgloss.Style
}

// DarkTheme 暗色主题（默认）
// DarkTheme is the default dark theme
func DarkTheme() Theme {
	t := Theme{
		Primary:   lipgloss.Color("#7C3AED"),
		Secondary: lipgloss.Color("#06B6D4"),
		Danger:    lipgloss.Color("#EF4444"),
		Warning:   lipgloss.Color("#F59E0B"),
		Success:   lipgloss.Color("#10B981"),
		Muted:     lipgloss.Color("#6B7280"),
		Text:      lipgloss.Color("#E5E7EB"),
		Border:    lipgloss.Color("#374151"),
	}

	t.TitleStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.InfoStyle = lipgloss.NewStyle().
		Foreground(t.Secondary).
		Bold(true)

	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Danger).
		Bold(true)

	t.WarningStyle = lipgloss.NewStyle().
		Foreground(t.Warning)

	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(t.Success)

	t.MutedStyle = lipgloss.NewStyle().
		Foreground(t.Muted)

	t.DangerStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(t.Danger).
		Bold(true).
		Padding(0, 1)

	t.CommandStyle = lipgloss.NewStyle().
		Foreground(t.Success).
		Bold(true)

	t.PanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)

	return t
}

// PlainTheme renders everything without escape sequences.
func PlainTheme() Theme {
	s := lipgloss.NewStyle()
	return Theme{
		TitleStyle:   s,
		InfoStyle:    s,
		ErrorStyle:   s,
		WarningStyle: s,
		SuccessStyle: s,
		MutedStyle:   s,
		DangerStyle:  s,
		CommandStyle: s,
		PanelStyle:   s,
	}
}
