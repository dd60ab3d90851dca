// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Gestures counts recognized gestures, derived from state transitions.
type Gestures struct {
	Taps        int
	DoubleTaps  int
	Explores    int
	SplitTaps   int
	TwoFinger   int
	Passthrough int
}

// CountGestures classifies transition counts into gestures.
func CountGestures(counts []model.TransitionCount) Gestures {
	var g Gestures
	for _, c := range counts {
		from, err := explore.ParseState(c.From)
		if err != nil {
			continue
		}
		to, err := explore.ParseState(c.To)
		if err != nil {
			continue
		}
		switch {
		case from == explore.SingleTapPressed && to == explore.SingleTapReleased:
			g.Taps += c.Count
		case to == explore.DoubleTapPressed && from != explore.TouchExploreSecondPress:
			g.DoubleTaps += c.Count
		case from == explore.SingleTapPressed && to == explore.TouchExploration:
			g.Explores += c.Count
		case from == explore.TouchExploration && to == explore.TouchExploreSecondPress:
			g.SplitTaps += c.Count
		case to == explore.TwoToOneFinger:
			g.TwoFinger += c.Count
		case to == explore.Passthrough:
			g.Passthrough += c.Count
		}
	}
	return g
}

// SessionMetrics computes the share of inputs discarded and rewritten, and
// the input rate.
func SessionMetrics(s model.SessionAggregate) (discard, rewrite, perMinute float64) {
	if s.Inputs > 0 {
		discard = float64(s.Discarded) / float64(s.Inputs)
		rewrite = float64(s.Rewritten) / float64(s.Inputs)
	}
	if s.DurationMs > 0 {
		perMinute = float64(s.Inputs) / (float64(s.DurationMs) / 60000.0)
	}
	return discard, rewrite, perMinute
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints totals across sessions.
func RenderSummary(w io.Writer, sessions []model.SessionAggregate, g Gestures) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	var inputs, discarded, rewritten, dispatched int
	for _, s := range sessions {
		inputs += s.Inputs
		discarded += s.Discarded
		rewritten += s.Rewritten
		dispatched += s.Dispatched
	}
	ratio := 0.0
	if inputs > 0 {
		ratio = float64(discarded) / float64(inputs)
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", len(sessions)),
		fmt.Sprintf("Inputs: %d (discarded %d, rewritten %d)", inputs, discarded, rewritten),
		fmt.Sprintf("Dispatched: %d", dispatched),
		fmt.Sprintf("Discard ratio: %.2f%%", ratio*100),
		"",
		"Gestures",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	rows := [][]string{
		{"tap", fmt.Sprintf("%d", g.Taps)},
		{"double tap", fmt.Sprintf("%d", g.DoubleTaps)},
		{"explore", fmt.Sprintf("%d", g.Explores)},
		{"split tap", fmt.Sprintf("%d", g.SplitTaps)},
		{"two finger", fmt.Sprintf("%d", g.TwoFinger)},
		{"passthrough", fmt.Sprintf("%d", g.Passthrough)},
	}
	return writeTable(w, []string{"Gesture", "Count"}, rows, map[int]bool{1: true})
}

// RenderSessions prints one row per session plus a discard ratio trend.
func RenderSessions(w io.Writer, sessions []model.SessionAggregate, window int) error {
	if len(sessions) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Sessions"); err != nil {
		return err
	}
	ratios := make([]float64, len(sessions))
	rows := make([][]string, 0, len(sessions))
	for i, s := range sessions {
		discard, rewrite, perMinute := SessionMetrics(s)
		ratios[i] = discard * 100
		rows = append(rows, []string{
			shortID(s.SessionID),
			s.Source,
			s.Name,
			s.EndedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", s.Inputs),
			fmt.Sprintf("%.1f%%", discard*100),
			fmt.Sprintf("%.1f%%", rewrite*100),
			fmt.Sprintf("%.1f", perMinute),
		})
	}
	headers := []string{"ID", "Source", "Name", "Ended", "Inputs", "Discard", "Rewrite", "Inputs/min"}
	if err := writeTable(w, headers, rows, map[int]bool{4: true, 5: true, 6: true, 7: true}); err != nil {
		return err
	}
	if len(sessions) > 1 {
		trend := Sparkline(MovingAverage(ratios, window))
		if _, err := fmt.Fprintf(w, "Discard trend: [%s]\n\n", trend); err != nil {
			return err
		}
	}
	return nil
}

// RenderTransitions prints the most frequent state changes.
func RenderTransitions(w io.Writer, counts []model.TransitionCount, top int) error {
	counts = TopTransitions(counts, top)
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, "No transitions found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Transitions"); err != nil {
		return err
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.From, "->", c.To, fmt.Sprintf("%d", c.Count)})
	}
	return writeTable(w, []string{"From", "", "To", "Count"}, rows, map[int]bool{3: true})
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool) error {
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
