package monitor

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smazurov/lwalight/internal/aggregate"
	"github.com/smazurov/lwalight/internal/status"
)

// SummaryLines renders the snapshot as a short status report: the decided
// state, one line per source grouped by role, and the evaluation time.
func SummaryLines(snap status.Snapshot, d aggregate.Decision, now time.Time) []string {
	lines := []string{fmt.Sprintf("State: %s (%s)", d.State, d.Cause)}

	for _, role := range status.Roles() {
		for _, r := range snap.ByRole(role) {
			lines = append(lines, readingLine(r, now))
		}
	}

	lines = append(lines, "Updated: "+now.UTC().Format("2006-01-02 15:04:05")+" UTC")
	return lines
}

func readingLine(r status.Reading, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", roleLabel(r.Role), r.SourceID, r.Effective(now))

	if r.Detail != "" {
		b.WriteString(" - ")
		b.WriteString(r.Detail)
	}

	switch {
	case r.FetchedAt.IsZero():
		b.WriteString(" [never fetched")
		if r.Err != "" {
			b.WriteString(": " + r.Err)
		}
		b.WriteString("]")
	case r.Expired(now):
		fmt.Fprintf(&b, " [expired, last good %s ago]", r.Age(now).Round(time.Second))
	case r.Stale:
		fmt.Fprintf(&b, " [stale, last good %s ago]", r.Age(now).Round(time.Second))
	}
	return b.String()
}

func roleLabel(role status.Role) string {
	switch role {
	case status.RoleStation:
		return "Station"
	case status.RoleRecorder:
		return "Recorder"
	case status.RoleCamera:
		return "Camera"
	default:
		return string(role)
	}
}

// WriteSummary writes SummaryLines to w, one per line.
func WriteSummary(w io.Writer, snap status.Snapshot, d aggregate.Decision, now time.Time) error {
	for _, line := range SummaryLines(snap, d, now) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
