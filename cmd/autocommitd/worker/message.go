package worker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxSummaryChars and maxBodyQuoteChars bound the commit message's
// summary line and quoted body respectively.
const (
	maxSummaryChars   = 72
	maxBodyQuoteChars = 400
)

var dmp = diffmatchpatch.New()

// diffStats is the +additions/-deletions pair quoted in every commit
// message's Changes trailer.
type diffStats struct {
	additions int
	deletions int
}

// fileDiffStats runs a line-level diff between before and after and
// counts inserted/deleted lines, summed across every changed file in the
// batch into one aggregate ("Changes: +<add>/-<del>").
func fileDiffStats(before, after string) diffStats {
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var stats diffStats
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") && d.Text != "" {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.additions += n
		case diffmatchpatch.DiffDelete:
			stats.deletions += n
		}
	}
	return stats
}

func sumStats(perFile []diffStats) diffStats {
	var total diffStats
	for _, s := range perFile {
		total.additions += s.additions
		total.deletions += s.deletions
	}
	return total
}

// correlation carries the matched session context for a batch, if any.
type correlation struct {
	sessionID  string
	confidence float64
	summary    string // first non-blank textual line, already truncated
	quote      string // most recent session text, already truncated
}

// composeMessage builds the commit message body With a
// correlation it produces the "<summary> — shadow/<branch>" form quoting
// session text; without one it falls back to "Auto-save (<N> files) —
// shadow/<branch>" enumerating files and stats only.
func composeMessage(shadowBranch string, files []string, stats diffStats, corr *correlation) string {
	if corr == nil {
		return composeDiffOnlyMessage(shadowBranch, files, stats)
	}
	return composeCorrelatedMessage(shadowBranch, files, stats, *corr)
}

func composeDiffOnlyMessage(shadowBranch string, files []string, stats diffStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto-save (%d files) — %s\n\n", len(files), shadowBranch)
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	fmt.Fprintf(&b, "\nFiles: %s\n", strings.Join(files, ", "))
	fmt.Fprintf(&b, "Changes: +%d/-%d\n", stats.additions, stats.deletions)
	return stripControlChars(b.String())
}

func composeCorrelatedMessage(shadowBranch string, files []string, stats diffStats, corr correlation) string {
	summary := truncate(corr.summary, maxSummaryChars)
	if summary == "" {
		summary = "Auto-save"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s\n\n", summary, shadowBranch)
	if quote := truncate(corr.quote, maxBodyQuoteChars); quote != "" {
		fmt.Fprintf(&b, "%s\n\n", quote)
	}
	fmt.Fprintf(&b, "Session: %s\n", corr.sessionID)
	fmt.Fprintf(&b, "Files: %s\n", strings.Join(files, ", "))
	fmt.Fprintf(&b, "Changes: +%d/-%d\n", stats.additions, stats.deletions)
	fmt.Fprintf(&b, "Correlation: %.2f\n", corr.confidence)
	return stripControlChars(b.String())
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// stripControlChars removes non-printable control characters other than
// newline and tab, keeping the message plain UTF-8.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
