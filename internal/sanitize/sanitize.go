// Package sanitize normalizes raw note content before it is persisted.
// All transforms are pure and idempotent so re-sanitizing stored content is a
// no-op.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// Terminal escape sequences: ESC '[' digits (';' digits)* letter.
	ansiPattern = regexp.MustCompile(`\x1b\[\d+(?:;\d+)*[A-Za-z]`)

	// Raw error-banner fragments that leak into pasted terminal output.
	bannerLiterals = []string{"[31m", "[1m", "[22m", "[39m"}

	usageErrorPattern = regexp.MustCompile(`Usage Error[^\n]*`)

	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	headerSpacePattern  = regexp.MustCompile(`(#+)([^#\s])`)
	bulletSpacePattern  = regexp.MustCompile(`(\n[ \t]*[-*])([^\s])`)
)

// commandFixes maps known broken command examples to canonical forms.
// This is a substitution table, not logic; extend it as new breakage shows up
// in captured agent output.
var commandFixes = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\$ +yarn +run +\[.*?\] +your-script`), "`yarn ios`"},
}

var literalFixes = [][2]string{
	{"`yarn ios` ... to build and run on Android simulator or device", "`yarn android` to build and run on Android simulator or device"},
	{"<scriptName> ...", "your-script ..."},
}

// Sanitize cleans raw content for storage. It never fails; unrecognized input
// passes through with only whitespace normalization applied.
func Sanitize(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")

	for _, lit := range bannerLiterals {
		s = strings.ReplaceAll(s, lit, "")
	}
	s = usageErrorPattern.ReplaceAllString(s, "")

	for _, fix := range commandFixes {
		s = fix.pattern.ReplaceAllString(s, fix.replacement)
	}
	for _, fix := range literalFixes {
		s = strings.ReplaceAll(s, fix[0], fix[1])
	}

	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")

	// Markdown spacing: one space after header hashes and bullet markers.
	s = headerSpacePattern.ReplaceAllString(s, "${1} ${2}")
	s = bulletSpacePattern.ReplaceAllString(s, "${1} ${2}")

	s = padCodeFences(s)
	s = dropTrailingTitleDuplicate(s)

	return s
}

// padCodeFences ensures a blank line before each opening fence and after each
// closing fence. Lines inside a fenced block are left untouched.
func padCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")
		if isFence && !inFence {
			if n := len(out); n > 0 && strings.TrimSpace(out[n-1]) != "" {
				out = append(out, "")
			}
			out = append(out, line)
			inFence = true
			continue
		}
		if isFence && inFence {
			out = append(out, line)
			inFence = false
			// Blank line after the closing fence is inserted when the
			// next non-fence line arrives.
			continue
		}
		if !inFence && len(out) > 0 {
			prev := out[len(out)-1]
			if strings.HasPrefix(strings.TrimSpace(prev), "```") && !fenceOpensBlock(out) && strings.TrimSpace(line) != "" {
				out = append(out, "")
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// fenceOpensBlock reports whether the last fence line in out opened a block
// (odd fence count means the final fence is an opener).
func fenceOpensBlock(out []string) bool {
	count := 0
	for _, line := range out {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			count++
		}
	}
	return count%2 == 1
}

// dropTrailingTitleDuplicate removes trailing lines that repeat the leading
// H1 title, a common artifact of agents echoing the heading at the end. All
// trailing copies go in one call, keeping the transform idempotent.
func dropTrailingTitleDuplicate(s string) string {
	lines := strings.Split(s, "\n")
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "# ") {
		return s
	}
	n := len(lines)
	for n > 2 && strings.TrimSpace(lines[n-1]) == first {
		n--
	}
	return strings.Join(lines[:n], "\n")
}
