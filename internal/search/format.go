package search

import (
	"fmt"
	"strings"
)

const bannerWidth = 80

// RenderText formats results as plain text suitable for pasting straight
// into an agent prompt. An empty result set renders an explicit "not found"
// sentence so the caller never mistakes it for a transport failure.
func RenderText(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No archives found for query: '%s'. The information you're looking for is not in the archives.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ARCHIVES SEARCH RESULTS FOR: '%s'\n", query)
	b.WriteString(strings.Repeat("=", bannerWidth) + "\n\n")
	fmt.Fprintf(&b, "Found %d relevant entries in the archives:\n\n", len(results))

	for i, result := range results {
		title := result.Title
		if title == "" {
			title = "Untitled Entry"
		}
		fmt.Fprintf(&b, "RESULT %d: %s\n", i+1, title)
		b.WriteString(strings.Repeat("-", bannerWidth) + "\n")
		fmt.Fprintf(&b, "Project: %s\n", result.Project)
		fmt.Fprintf(&b, "Location: %s\n\n", result.File)
		fmt.Fprintf(&b, "CONTENT PREVIEW:\n%s\n\n", strings.TrimSpace(result.Snippet))
	}
	return b.String()
}
