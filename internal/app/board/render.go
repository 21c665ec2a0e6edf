package board

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"order-sync/internal/domain"
	"order-sync/internal/engine"
)

// Render writes the board as one column block per status.
func Render(w io.Writer, v *engine.View) error {
	if v == nil {
		_, err := fmt.Fprintln(w, "no data yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ACTIVE %d\tREADY %d\tFAILED %d\tTOTAL %d\n",
		v.Summary.Active, v.Summary.Ready, v.Summary.Failed, v.Summary.Total)
	switch {
	case v.LastSnapshotAt.IsZero() && v.Stale:
		fmt.Fprintf(tw, "kitchen unreachable: %s\n", v.LastFetchError)
	case v.Stale:
		fmt.Fprintf(tw, "stale since %s: %s\n", v.LastSnapshotAt.Format(time.TimeOnly), v.LastFetchError)
	case !v.LastSnapshotAt.IsZero():
		fmt.Fprintf(tw, "updated %s\n", v.LastSnapshotAt.Format(time.TimeOnly))
	}
	cols := v.ByStatus()
	for _, st := range domain.Statuses() {
		recs := cols[st]
		fmt.Fprintf(tw, "\n%s (%d)\n", strings.ToUpper(string(st)), len(recs))
		for _, r := range recs {
			mark := " "
			if v.IsHighlighted(r.ID) {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, r.ID, r.StudentID, items(r.Items), r.LastSeenVia)
		}
	}
	return tw.Flush()
}

func items(in []domain.OrderItem) string {
	if len(in) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(in))
	for _, it := range in {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.MenuItemID))
	}
	return strings.Join(parts, ", ")
}
