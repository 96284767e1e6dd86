// Package correlator implements the Transcript Correlator (L4): it tails
// append-only transcript files beneath a user-configured
// root, keeps a bounded per-session ring of recent tool-use and text
// entries, and answers "what session was most plausibly responsible for
// this save" lookups for the commit message composer.
//
// The correlator never blocks a commit. Find is a synchronous in-memory
// lookup; callers that want a 50ms lookup budget enforced wrap it with
// FindWithTimeout.
package correlator

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/logging"
)

// maxTrackedFiles bounds the number of transcript files the correlator
// keeps tail offsets for (K=256 file eviction cap).
const maxTrackedFiles = 256

// slack is the grace period added to window before an entry is evicted,
// giving lookups racing the eviction goroutine a chance to still see
// entries right at the window boundary.
const slack = 5 * time.Second

// warnInterval rate-limits the "unreadable/malformed record" warning to
// at most once per file per hour (failure policy).
const warnInterval = time.Hour

// Correlator tails a transcript root and answers Find lookups.
type Correlator struct {
	window time.Duration

	mu       sync.RWMutex
	sessions map[string]*ring
	texts    map[string][]TextEntry

	offsetMu sync.Mutex
	offsets  *lru.Cache[string, int64]

	warnMu   sync.Mutex
	warnedAt map[string]time.Time
}

// New returns a Correlator with the given correlation window.
func New(window time.Duration) *Correlator {
	cache, _ := lru.New[string, int64](maxTrackedFiles)
	return &Correlator{
		window:   window,
		sessions: make(map[string]*ring),
		texts:    make(map[string][]TextEntry),
		offsets:  cache,
		warnedAt: make(map[string]time.Time),
	}
}

// Insert adds an observed tool use to its session's ring, evicting stale
// entries from that ring first (eviction runs on every insert).
func (c *Correlator) Insert(tu ToolUse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.sessions[tu.SessionID]
	if !ok {
		r = newRing()
		c.sessions[tu.SessionID] = r
	}
	r.evictOlderThan(tu.At.Add(-(c.window + slack)))
	r.push(tu)
}

// Find returns the most recent tool-use entry for path with age <=
// window, resolving ties: latest timestamp wins; equal
// timestamps (millisecond precision) favor the lexicographically smaller
// session id.
func (c *Correlator) Find(path string, now time.Time) (sessionID string, confidence float64, ok bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		path = resolved
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best ToolUse
	found := false
	for sid, r := range c.sessions {
		candidate, ok := r.mostRecentForPath(path, now, c.window)
		if !ok {
			continue
		}
		candidate.SessionID = sid
		if !found || isBetter(candidate, best) {
			best = candidate
			found = true
		}
	}
	if !found {
		return "", 0, false
	}

	age := now.Sub(best.At)
	confidence = 1.0 - float64(age)/float64(c.window)
	confidence = clamp01(confidence)
	return best.SessionID, confidence, true
}

// FindWithTimeout enforces the 50ms lookup budget of: if
// Find does not return within the deadline, it is treated as "no match".
func (c *Correlator) FindWithTimeout(ctx context.Context, path string, now time.Time, budget time.Duration) (sessionID string, confidence float64, ok bool) {
	type result struct {
		sessionID  string
		confidence float64
		ok         bool
	}
	done := make(chan result, 1)
	go func() {
		sid, conf, ok := c.Find(path, now)
		done <- result{sid, conf, ok}
	}()
	select {
	case r := <-done:
		return r.sessionID, r.confidence, r.ok
	case <-time.After(budget):
		return "", 0, false
	case <-ctx.Done():
		return "", 0, false
	}
}

func isBetter(candidate, current ToolUse) bool {
	if candidate.At.After(current.At) {
		return true
	}
	if candidate.At.Before(current.At) {
		return false
	}
	return candidate.SessionID < current.SessionID
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// WatchRoot walks root for existing transcript files, tails each for new
// lines, and watches for newly created files, until ctx is canceled. It
// does not assume a fixed filename: every file beneath
// root is a tailing candidate.
func (c *Correlator) WatchRoot(ctx context.Context, root string) error {
	if root == "" {
		return nil
	}
	t := newTailer(c, root)
	return t.run(ctx)
}

// ingestLine parses one transcript line and, if it decodes to a
// recognized record, files it into the appropriate ring. Unreadable or
// malformed lines are skipped silently, with at most one
// warning logged per file per hour.
func (c *Correlator) ingestLine(ctx context.Context, sourceFile string, line []byte) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return
	}
	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		c.warnOnce(ctx, sourceFile, err)
		return
	}
	if tu, ok := rec.toToolUse(); ok {
		c.Insert(tu)
	}
	if rec.Text != "" && rec.SessionID != "" {
		c.insertText(rec.SessionID, rec.Text, rec.Timestamp)
	}
}

func (c *Correlator) insertText(sessionID, text string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.texts[sessionID]
	entries = append(entries, TextEntry{SessionID: sessionID, Text: text, At: at})
	if len(entries) > ringCap {
		entries = entries[len(entries)-ringCap:]
	}
	c.texts[sessionID] = entries
}

// Summary returns the first non-blank textual line observed for a session
// within window of now (for the commit message's summary line) and the
// most recent text observed (for the quoted body)
// message composition rules.
func (c *Correlator) Summary(sessionID string, now time.Time) (firstLine string, mostRecent string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.texts[sessionID]
	if len(entries) == 0 {
		return "", ""
	}
	ordered := make([]TextEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	for _, e := range ordered {
		if now.Sub(e.At) > c.window {
			continue
		}
		line := firstNonBlankLine(e.Text)
		if line != "" {
			firstLine = line
			break
		}
	}
	mostRecent = ordered[len(ordered)-1].Text
	return firstLine, mostRecent
}

func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func (c *Correlator) warnOnce(ctx context.Context, file string, err error) {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	last, seen := c.warnedAt[file]
	if seen && time.Since(last) < warnInterval {
		return
	}
	c.warnedAt[file] = time.Now()
	logging.Warn(ctx, "correlator: skipping malformed transcript record", "file", file, "error", err.Error())
}

// trackOffset records how far into file we have read, evicting the
// least-recently-used file's offset once more than maxTrackedFiles are
// open, per the K=256 cap.
func (c *Correlator) trackOffset(file string, offset int64) {
	c.offsetMu.Lock()
	defer c.offsetMu.Unlock()
	c.offsets.Add(file, offset)
}

func (c *Correlator) loadOffset(file string) int64 {
	c.offsetMu.Lock()
	defer c.offsetMu.Unlock()
	v, ok := c.offsets.Get(file)
	if !ok {
		return 0
	}
	return v
}

// readNewLines reads any bytes appended to f since the last tracked
// offset and ingests each complete line.
func (c *Correlator) readNewLines(ctx context.Context, path string, f *os.File) {
	offset := c.loadOffset(path)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var read int64
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1
		c.ingestLine(ctx, path, line)
	}
	c.trackOffset(path, offset+read)
}
