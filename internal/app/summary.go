package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"impulse-go/internal/collection"
)

const rule = "============================================================"

// WriteSummary prints the end-of-run summary of a download pass.
func WriteSummary(w io.Writer, r *DownloadReport) {
	res := r.Result

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "DOWNLOAD %s\n", strings.ToUpper(r.Status))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Group:      %s (%s)\n", res.GroupName, res.GroupID)
	fmt.Fprintf(w, "Started:    %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Finished:   %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration().Round(time.Second))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total replays:           %s\n", humanize.Comma(int64(res.Total)))
	fmt.Fprintf(w, "Successfully downloaded: %s\n", humanize.Comma(int64(res.Successful)))
	fmt.Fprintf(w, "Skipped (already had):   %s\n", humanize.Comma(int64(res.Skipped)))
	fmt.Fprintf(w, "Failed:                  %s\n", humanize.Comma(int64(res.Failed)))
	fmt.Fprintf(w, "Downloaded this run:     %s\n", humanize.Bytes(uint64(res.TotalBytes)))

	if len(res.FailedItems) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed replays:")
		for _, f := range res.FailedItems {
			fmt.Fprintf(w, "  %s: %s\n", f.ReplayID, f.Error)
		}
	}

	if r.Storage != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Storage (%s):\n", displayPrefix(r.StoragePrefix))
		writeStorageStats(w, r.Storage)
	}
	if r.Tracker != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Tracker:")
		writeTrackerStats(w, r.Tracker)
	}
	if r.LogPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Run log: %s\n", r.LogPath)
	}
	fmt.Fprintln(w, rule)
}

// WritePlan prints what a download pass would do.
func WritePlan(w io.Writer, p *collection.Plan, avgReplayBytes int64) {
	remaining := p.Total - p.AlreadyDownloaded
	fmt.Fprintf(w, "Group:              %s (%s)\n", p.GroupName, p.GroupID)
	fmt.Fprintf(w, "Groups in tree:     %s\n", humanize.Comma(int64(p.Groups)))
	fmt.Fprintf(w, "Replays:            %s\n", humanize.Comma(int64(p.Total)))
	fmt.Fprintf(w, "Already downloaded: %s\n", humanize.Comma(int64(p.AlreadyDownloaded)))
	fmt.Fprintf(w, "To download:        %s", humanize.Comma(int64(remaining)))
	if avgReplayBytes > 0 && remaining > 0 {
		fmt.Fprintf(w, " (about %s)", humanize.Bytes(uint64(int64(remaining)*avgReplayBytes)))
	}
	fmt.Fprintln(w)
}

// WriteStats prints the report of the stats command.
func WriteStats(w io.Writer, s *StatsReport) {
	fmt.Fprintln(w, "Tracker:")
	writeTrackerStats(w, s.Tracker)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Parsing:")
	fmt.Fprintf(w, "  Parsed:   %s\n", humanize.Comma(int64(s.Parse.Parsed)))
	fmt.Fprintf(w, "  Failed:   %s\n", humanize.Comma(int64(s.Parse.Failed)))
	fmt.Fprintf(w, "  Unparsed: %s\n", humanize.Comma(int64(s.Parse.Unparsed)))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Storage (%s):\n", displayPrefix(s.StoragePrefix))
	writeStorageStats(w, s.Storage)

	if len(s.Groups) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Groups:")
		for _, g := range s.Groups {
			fmt.Fprintf(w, "  %s  %s  %s replays  (last run %s)\n",
				g.GroupID, g.Name, humanize.Comma(int64(g.ReplayCount)), humanize.Time(g.DownloadedAt))
		}
	}
}

func writeTrackerStats(w io.Writer, s *collection.TrackerStats) {
	fmt.Fprintf(w, "  Total:      %s\n", humanize.Comma(int64(s.Total)))
	fmt.Fprintf(w, "  Downloaded: %s (%s)\n", humanize.Comma(int64(s.Downloaded)), humanize.Bytes(uint64(s.TotalBytes)))
	fmt.Fprintf(w, "  Pending:    %s\n", humanize.Comma(int64(s.Pending)))
	fmt.Fprintf(w, "  Failed:     %s\n", humanize.Comma(int64(s.Failed)))
}

func writeStorageStats(w io.Writer, s *collection.StorageStats) {
	fmt.Fprintf(w, "  Files: %s\n", humanize.Comma(int64(s.Count)))
	fmt.Fprintf(w, "  Size:  %s\n", humanize.Bytes(uint64(s.TotalBytes)))
}

func displayPrefix(prefix string) string {
	if prefix == "" {
		return "all"
	}
	return prefix
}
