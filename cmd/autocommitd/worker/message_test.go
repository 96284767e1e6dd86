package worker

import "testing"

func TestComposeDiffOnlyMessage(t *testing.T) {
	msg := composeMessage("shadow/feature/x", []string{"src/a.ts"}, diffStats{additions: 4, deletions: 1}, nil)
	if got := msg[:len("Auto-save (1 files) — shadow/feature/x")]; got != "Auto-save (1 files) — shadow/feature/x" {
		t.Errorf("first line = %q", got)
	}
	if !contains(msg, "Changes: +4/-1") {
		t.Errorf("expected Changes trailer, got %q", msg)
	}
}

func TestComposeCorrelatedMessage(t *testing.T) {
	corr := &correlation{
		sessionID:  "7744aef1",
		confidence: 0.7015,
		summary:    "Fix the off-by-one in the debounce timer",
		quote:      "Adjusted the window calc and added a regression test.",
	}
	msg := composeMessage("shadow/feature/x", []string{"src/a.ts"}, diffStats{additions: 2, deletions: 0}, corr)

	if !contains(msg, "Fix the off-by-one in the debounce timer — shadow/feature/x") {
		t.Errorf("expected summary line, got %q", msg)
	}
	if !contains(msg, "Session: 7744aef1") {
		t.Errorf("expected session trailer, got %q", msg)
	}
	if !contains(msg, "Correlation: 0.70") {
		t.Errorf("expected rounded correlation trailer, got %q", msg)
	}
}

func TestComposeCorrelatedMessage_FallsBackToAutoSaveWhenNoSummary(t *testing.T) {
	corr := &correlation{sessionID: "s1", confidence: 0.5}
	msg := composeMessage("shadow/main", []string{"a.ts"}, diffStats{}, corr)
	if !contains(msg, "Auto-save — shadow/main") {
		t.Errorf("expected Auto-save fallback summary, got %q", msg)
	}
}

func TestStripControlChars(t *testing.T) {
	in := "hello\x00world\x07\nsecond line\t ok"
	got := stripControlChars(in)
	if contains(got, "\x00") || contains(got, "\x07") {
		t.Errorf("expected control chars stripped, got %q", got)
	}
	if !contains(got, "\n") || !contains(got, "\t") {
		t.Errorf("expected newline/tab preserved, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 72); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := make([]rune, 100)
	for i := range long {
		long[i] = 'x'
	}
	got := truncate(string(long), 72)
	if len([]rune(got)) != 72 {
		t.Errorf("len(truncated) = %d, want 72", len([]rune(got)))
	}
}

func TestFileDiffStats(t *testing.T) {
	before := "line1\nline2\nline3\n"
	after := "line1\nline2 changed\nline3\nline4\n"
	stats := fileDiffStats(before, after)
	if stats.additions == 0 {
		t.Errorf("expected at least one addition, got %+v", stats)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
