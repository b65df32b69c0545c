package export

import (
	"fmt"
	"strings"
	"time"
)

// BuildReport renders the emergency text artifact: enough detail for the
// user to retry and for a bug report to be actionable. It depends on
// nothing external, so this tier cannot fail short of a broken filesystem.
func BuildReport(job Job, reasons []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Export failed for project %q\n", job.ProjectName)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	duration := job.Duration
	if duration <= 0 {
		duration = 0
	}
	width, height := job.Settings.Dimensions()
	fmt.Fprintf(&b, "Duration:   %.2fs\n", duration)
	fmt.Fprintf(&b, "Resolution: %dx%d (%s)\n", width, height, job.Settings.Quality)
	fmt.Fprintf(&b, "Frame rate: %d fps\n", job.Settings.FPS)
	fmt.Fprintf(&b, "Bitrate:    %d kbps\n", job.Settings.CustomBitrate)
	fmt.Fprintf(&b, "Tracks:     %d\n", len(job.Tracks))
	fmt.Fprintf(&b, "Media:      %d items\n\n", len(job.Items))

	b.WriteString("All export methods failed:\n")
	for _, r := range reasons {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	b.WriteString("\nPlease check that your media files are reachable and try again.\n")
	return b.String()
}
