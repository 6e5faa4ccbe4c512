package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/dhcgn/chatlog-reconstruct/fetch"
	"github.com/dhcgn/chatlog-reconstruct/stats"
)

// Bar manages a progress bar for the download batch.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	enabled bool
}

// New creates a new progress bar if logLevel is "info". The bar starts with
// the first download so that log lines of the earlier stages stay readable.
func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Update advances the progress bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	switch evt.Type {
	case stats.EventTypeReferences:
		b.total = evt.Count
		pterm.Info.Printf("Attachments to download: %s\n", humanize.Comma(int64(evt.Count)))
	case stats.EventTypeFiltered:
		b.total--
	case stats.EventTypeDownloaded, stats.EventTypeSkipped, stats.EventTypeRejected, stats.EventTypeFailed, stats.EventTypeDryRun:
		b.start()
		if b.pb == nil {
			return
		}
		b.pb.UpdateTitle(fmt.Sprintf("[%d] %s", evt.Counter, fetch.FileName(evt.Reference)))
		b.pb.Increment()
	case stats.EventTypePaused:
		pterm.Warning.Printf("Download limit reached, resuming in %s\n", evt.Duration.Round(time.Second))
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

func (b *Bar) start() {
	if b.pb != nil || b.total <= 0 {
		return
	}
	pb, err := pterm.DefaultProgressbar.
		WithTotal(b.total).
		WithTitle("Downloading attachments").
		Start()
	if err != nil {
		return
	}
	b.pb = pb
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}
	_, _ = b.pb.Stop()
	b.pb = nil
}

// PrintSummary prints the run summary as a pterm section.
func PrintSummary(summary stats.Summary, duration time.Duration) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	for _, line := range SummaryLines(summary, duration) {
		pterm.Info.Println(line)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}

// SummaryLines renders the summary figures in a human-readable form.
func SummaryLines(summary stats.Summary, duration time.Duration) []string {
	lines := []string{
		fmt.Sprintf("Duration: %s", duration.Round(time.Millisecond)),
		fmt.Sprintf("Messages combined: %s", humanize.Comma(int64(summary.Combined))),
		fmt.Sprintf("Attachment references: %s", humanize.Comma(int64(summary.References))),
	}
	if summary.Filtered > 0 {
		lines = append(lines, fmt.Sprintf("Filtered out: %s", humanize.Comma(int64(summary.Filtered))))
	}
	if summary.DryRun > 0 {
		lines = append(lines, fmt.Sprintf("Dry run (not downloaded): %s", humanize.Comma(int64(summary.DryRun))))
	}
	lines = append(lines,
		fmt.Sprintf("Downloaded: %s (%s)", humanize.Comma(int64(summary.Downloaded)), humanize.Bytes(uint64(summary.Bytes))),
		fmt.Sprintf("Already present (skipped): %s", humanize.Comma(int64(summary.Skipped))),
		fmt.Sprintf("Rejected by server: %s", humanize.Comma(int64(summary.Rejected))),
		fmt.Sprintf("Failed: %s", humanize.Comma(int64(summary.Failed))),
	)
	if summary.Pauses > 0 {
		lines = append(lines, fmt.Sprintf("Rate-limit pauses: %d", summary.Pauses))
	}
	if summary.Errors > 0 {
		lines = append(lines, fmt.Sprintf("Errors: %d", summary.Errors))
	}
	return lines
}
