package app

import (
	"fmt"
	"io"
	"time"

	"impulse-go/internal/ballchasing"
	"impulse-go/internal/collection"
	"impulse-go/internal/ratelimit"
)

// consoleProgress prints one line per finished item and, every `every`
// items, the limiter's hourly usage.
type consoleProgress struct {
	out     io.Writer
	every   int
	perHour int
	status  func() ratelimit.Status
}

func (p *consoleProgress) Report(e collection.Progress) {
	prefix := fmt.Sprintf("[%d/%d] %s", e.Current, e.Total, e.ReplayID)

	switch e.Status {
	case collection.StatusDownloading:
		fmt.Fprintf(p.out, "%s downloading\n", prefix)
		return
	case collection.StatusSaving:
		return
	case collection.StatusComplete:
		fmt.Fprintf(p.out, "%s saved to %s\n", prefix, e.StorageKey)
	case collection.StatusSkipped:
		fmt.Fprintf(p.out, "%s skipped (%s)\n", prefix, e.Message)
	case collection.StatusFailed:
		if hint := RemoteHint(e.Error); hint != "" {
			fmt.Fprintf(p.out, "%s FAILED: %s (%s)\n", prefix, e.Message, hint)
		} else {
			fmt.Fprintf(p.out, "%s FAILED: %s\n", prefix, e.Message)
		}
	}

	if p.every > 0 && p.status != nil && e.Current%p.every == 0 {
		writeRateStatus(p.out, p.status(), p.perHour)
	}
}

func writeRateStatus(w io.Writer, s ratelimit.Status, perHour int) {
	fmt.Fprintf(w, "Rate limit: %d/%d requests this hour, window resets in %s\n",
		s.RequestsThisHour, perHour, s.ResetsIn.Round(time.Second))
}

// RemoteHint explains a catalog failure to the operator, or returns "" when
// err did not come from the catalog.
func RemoteHint(err error) string {
	switch {
	case err == nil:
		return ""
	case ballchasing.IsNotFound(err):
		return "not found on the catalog, check the id"
	case ballchasing.IsRetryable(err):
		return "temporary, rerun later to retry"
	}
	return ""
}
