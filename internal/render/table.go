package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Table renders rows in aligned columns. Cells wider than maxCell are folded
// onto continuation lines.
func (c *Console) Table(title string, rows [][]string, maxCell int) {
	c.Panel(title, FormatTable(rows, maxCell, c.theme))
}

// FormatTable aligns rows into columns; the first column gets the title style,
// the rest are muted.
func FormatTable(rows [][]string, maxCell int, theme Theme) string {
	if len(rows) == 0 {
		return ""
	}
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	widths := make([]int, cols)
	folded := make([][][]string, len(rows))
	for i, r := range rows {
		folded[i] = make([][]string, cols)
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(r) {
				cell = r[j]
			}
			lines := foldCell(cell, maxCell)
			folded[i][j] = lines
			for _, l := range lines {
				widths[j] = max(widths[j], runewidth.StringWidth(l))
			}
		}
	}

	var b strings.Builder
	for i := range folded {
		height := 1
		for _, cell := range folded[i] {
			height = max(height, len(cell))
		}
		for line := 0; line < height; line++ {
			parts := make([]string, cols)
			for j, cell := range folded[i] {
				text := ""
				if line < len(cell) {
					text = cell[line]
				}
				if j < cols-1 {
					text = runewidth.FillRight(text, widths[j])
				}
				if j == 0 {
					parts[j] = theme.SuccessStyle.Render(text)
				} else {
					parts[j] = theme.MutedStyle.Render(text)
				}
			}
			b.WriteString(strings.TrimRight(strings.Join(parts, " "), " "))
			if i < len(folded)-1 || line < height-1 {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func foldCell(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}
	var out []string
	for runewidth.StringWidth(s) > width {
		head := runewidth.Truncate(s, width, "")
		if head == "" {
			break
		}
		out = append(out, head)
		s = s[len(head):]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
