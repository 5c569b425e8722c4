package fourier

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	brand       = lipgloss.AdaptiveColor{Light: "26", Dark: "81"}
	subtle      = lipgloss.AdaptiveColor{Light: "245", Dark: "244"}
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(brand)
	cellStyle   = lipgloss.NewStyle().Foreground(subtle)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(subtle).Padding(0, 1)
)

var fourierColumns = []string{"Coefficient", "Frac explained", "Cumulative frac explained", "x", "y"}

// RenderFourierTable writes ranked rows as a bordered table.
func RenderFourierTable(w io.Writer, title string, rows []FourierRow) error {
	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, fourierColumns)
	for _, r := range rows {
		cells = append(cells, []string{
			fmt.Sprintf("%.6g", r.Coefficient),
			fmt.Sprintf("%.4f", r.FracExplained),
			fmt.Sprintf("%.4f", r.CumulativeFrac),
			r.X,
			r.Y,
		})
	}

	widths := make([]int, len(fourierColumns))
	for _, row := range cells {
		for j, c := range row {
			widths[j] = max(widths[j], len(c))
		}
	}

	lines := make([]string, 0, len(cells)+1)
	if title != "" {
		lines = append(lines, headerStyle.Render(title))
	}
	for i, row := range cells {
		padded := make([]string, len(row))
		for j, c := range row {
			padded[j] = c + strings.Repeat(" ", widths[j]-len(c))
		}
		line := strings.Join(padded, "  ")
		if i == 0 {
			lines = append(lines, headerStyle.Render(line))
		} else {
			lines = append(lines, cellStyle.Render(line))
		}
	}
	_, err := fmt.Fprintln(w, panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	return err
}
