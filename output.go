package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/IO"
	"github.com/manningwu07/grokking/training"
	"github.com/manningwu07/grokking/utils"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "26", Dark: "81"})
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "244"})
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// asciiPlot draws a crude vertical bar chart of values (0..1).
func asciiPlot(values []float64, height int) string {
	var sb strings.Builder
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		for _, v := range values {
			if v >= threshold {
				sb.WriteString("█")
			} else {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// logCurve buckets a loss history into width columns of mean log loss,
// scaled to 0..1 against lo and hi.
func logCurve(losses []float64, width int, lo, hi float64) []float64 {
	if len(losses) == 0 || width <= 0 {
		return nil
	}
	width = min(width, len(losses))
	out := make([]float64, width)
	for c := 0; c < width; c++ {
		from := c * len(losses) / width
		to := (c + 1) * len(losses) / width
		s := 0.0
		for _, l := range losses[from:to] {
			s += math.Log(l)
		}
		v := s / float64(to-from)
		if hi > lo {
			out[c] = (v - lo) / (hi - lo)
		}
	}
	return out
}

func logRange(series ...[]float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, l := range s {
			lo = math.Min(lo, math.Log(l))
			hi = math.Max(hi, math.Log(l))
		}
	}
	return lo, hi
}

// renderPairs writes a titled box of key/value lines.
func renderPairs(w io.Writer, title string, pairs [][2]string) {
	lines := []string{titleStyle.Render(title)}
	for _, kv := range pairs {
		lines = append(lines, keyStyle.Render(kv[0]+":")+" "+kv[1])
	}
	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func renderRun(w io.Writer, res *training.Result) {
	last := len(res.TrainLosses) - 1
	renderPairs(w, res.RunName, [][2]string{
		{"dir", res.RunDir},
		{"epochs", fmt.Sprint(res.FinalEpoch + 1)},
		{"train loss", fmt.Sprintf("%.6g", res.TrainLosses[last])},
		{"test loss", fmt.Sprintf("%.6g", res.TestLosses[last])},
		{"weight norm", fmt.Sprintf("%.4f", weightNorm(res.Model.Parameters()))},
	})
	lo, hi := logRange(res.TrainLosses, res.TestLosses)
	fmt.Fprintln(w, titleStyle.Render("log train loss"))
	fmt.Fprintln(w, asciiPlot(logCurve(res.TrainLosses, 60, lo, hi), 8))
	fmt.Fprintln(w, titleStyle.Render("log test loss"))
	fmt.Fprintln(w, asciiPlot(logCurve(res.TestLosses, 60, lo, hi), 8))
}

// weightNorm is the L2 norm of every parameter taken together.
func weightNorm(ps map[string]*mat.Dense) float64 {
	s := 0.0
	for _, m := range ps {
		n := utils.MatrixNorm(m)
		s += n * n
	}
	return math.Sqrt(s)
}

func renderRuns(w io.Writer, runs []IO.RunRow) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		status := "running or interrupted"
		if r.Finished {
			status = fmt.Sprintf("epoch %d  train %.4g  test %.4g", r.FinalEpoch, r.TrainLoss, r.TestLoss)
		}
		renderPairs(w, fmt.Sprintf("#%d %s", r.ID, r.Name), [][2]string{
			{"fn", r.FnName},
			{"started", r.Started.Format("2006-01-02 15:04:05")},
			{"status", status},
		})
	}
}
