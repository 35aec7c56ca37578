package state

import (
	"fmt"
	"strings"

	"TrackPublisher/internal/domain"
)

var separator = strings.Repeat("=", 70)

// RenderHistory formats publish records as the human-readable upload log.
func RenderHistory(records []domain.PublishRecord) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(separator + "\n")
		fmt.Fprintf(&b, "Uploaded: %s\n", r.PublishedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintf(&b, "Language: %s\n", strings.ToUpper(r.Bucket))
		fmt.Fprintf(&b, "Type:     %s\n", r.UploadType)
		fmt.Fprintf(&b, "Title:    %s\n", strings.Join(r.Titles, " x "))
		fmt.Fprintf(&b, "Artist:   %s\n", strings.Join(r.Authors, ", "))
		fmt.Fprintf(&b, "Video ID: %s\n", strings.Join(r.ItemIDs, ", "))
		fmt.Fprintf(&b, "URL:      %s\n", r.URL)
		if r.Restricted {
			fmt.Fprintf(&b, "Status:   restricted (%s)\n", r.Status)
		}
		b.WriteString(separator + "\n\n")
	}
	return b.String()
}
