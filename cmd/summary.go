package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ev3sim/ev3sim/sim/runner"
)

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, res *runner.Result, tickRate int, elapsed time.Duration) {
	simulated := float64(res.Ticks) / float64(tickRate)
	fmt.Fprintln(w, "=== Run Summary ===")
	fmt.Fprintf(w, "Ticks:          %s (%ss simulated, %s wall)\n",
		humanize.Comma(res.Ticks), humanize.FtoaWithDigits(simulated, 2), elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Fprintf(w, "Speed:          x%s real time\n", humanize.FtoaWithDigits(simulated/elapsed.Seconds(), 2))
	}
	fmt.Fprintf(w, "Robots:         %d\n", len(res.Robots))
	if res.Score != nil {
		sides := make([]string, 0, len(res.Score))
		for side := range res.Score {
			sides = append(sides, side)
		}
		sort.Strings(sides)
		for _, side := range sides {
			fmt.Fprintf(w, "Score %-9s %d\n", side+":", res.Score[side])
		}
	}
	fmt.Fprintf(w, "Program faults: %d\n", len(res.Faults))
	for _, err := range res.Faults {
		fmt.Fprintf(w, "  %v\n", err)
	}
	if s := res.Summary; s != nil && (s.Cycles > 0 || s.LogLines > 0 || s.Faults > 0) {
		fmt.Fprintln(w, "=== Trace ===")
		if s.Cycles > 0 {
			fmt.Fprintf(w, "Cycles:         %s (%s slow, mean %v, max %v)\n",
				humanize.Comma(int64(s.Cycles)), humanize.Comma(int64(s.SlowCycles)), s.MeanDuration, s.MaxDuration)
		}
		fmt.Fprintf(w, "Log lines:      %s\n", humanize.Comma(int64(s.LogLines)))
		fmt.Fprintf(w, "Faults:         %s\n", humanize.Comma(int64(s.Faults)))
	}
}
