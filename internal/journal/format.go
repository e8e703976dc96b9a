package journal

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// WriteTable prints operations as an aligned table with relative times.
func WriteTable(w io.Writer, ops []*Operation, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEVICE\tKIND\tSTATUS\tSTARTED\tDURATION")
	for _, op := range ops {
		duration := "-"
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			op.ID[:8], op.Device, op.Kind, op.Status,
			humanize.RelTime(op.StartedAt, now, "ago", "from now"), duration)
	}
	return tw.Flush()
}
