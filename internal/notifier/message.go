package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/poster_downloader/internal/downloader"
)

// BatchMessage formats the end-of-batch notification.
func BatchMessage(report *downloader.Report) string {
	var b strings.Builder

	icon := "✅"
	if report.Failed() > 0 {
		icon = "⚠️"
	}

	fmt.Fprintf(&b, "%s Poster batch %s finished: %d saved (%s), %d failed in %s",
		icon,
		report.BatchID,
		report.Succeeded(),
		humanize.Bytes(uint64(report.Bytes())),
		report.Failed(),
		report.Duration().Round(time.Second),
	)

	byKind := report.ByKind()

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, string(kind))
	}

	sort.Strings(kinds)

	for _, kind := range kinds {
		fmt.Fprintf(&b, "\n- %s: %d", kind, byKind[downloader.FailureKind(kind)])
	}

	return b.String()
}
