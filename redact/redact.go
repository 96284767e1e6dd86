// Package redact strips probable secrets out of text before it is logged
// or surfaced in a commit message excerpt. Detection is layered: a string
// span is treated as a secret if ANY layer flags it.
//
//  1. fixed: a small set of hard-coded formats (AWS/GCP/GitHub/OpenAI-style
//     tokens, PEM private key headers, bearer tokens, and "key/password/
//     secret = <token>" assignments) — the set the path classifier checks
//     first and cheaply, independent of the heavier layers below.
//  2. entropy: high-entropy alphanumeric runs, catching tokens that don't
//     match any fixed shape.
//  3. gitleaks: ~180 known secret-format regexes, catching provider-specific
//     formats the fixed set doesn't enumerate.
//
// FixedPatternHit reports only layer 1 and never retains the matched text,
// so callers that only need a yes/no answer (the classifier's accept/reject
// decision) never have the secret pass through a string they might log.
// String/Bytes/JSONLBytes run all three layers and perform the redaction
// itself, for callers that need to keep the surrounding text (log lines,
// commit message excerpts) with only the secret spans masked.
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// entropyToken matches candidate secret-shaped runs for the entropy layer.
var entropyToken = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy (bits/char) for a token
// to be treated as a secret. 4.5 keeps ordinary identifiers and prose
// below the line while real API keys, which usually run above 5.0, clear it.
const entropyThreshold = 4.5

// fixedPatterns are the small, cheap formats checked before the heavier
// entropy and gitleaks layers run. Unlike gitleaks' ~180 provider-specific
// rules, these are the handful a classifier can afford to check on every
// staged file without first loading the full gitleaks ruleset.
var fixedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                                    // AWS access key id
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),                               // Google API key
	regexp.MustCompile(`gh[pousr]_[0-9A-Za-z]{36,}`),                         // GitHub token
	regexp.MustCompile(`sk-[0-9A-Za-z]{20,}`),                                  // OpenAI-style secret key
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]{20,}`),                       // bearer token
	regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA |)PRIVATE KEY-----`), // PEM private key header
	regexp.MustCompile(`(?i)(?:api[_-]?key|secret|password|passwd|token)\s*[:=]\s*['"]?[A-Za-z0-9/+_.-]{12,}['"]?`),
}

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

// FixedPatternHit reports whether s contains any fixed-pattern secret shape,
// without revealing which pattern matched or where. This is the cheap first
// check the path classifier runs on a diff before deciding whether a file
// can be staged at all (rejection reason 7).
func FixedPatternHit(s string) bool {
	for _, p := range fixedPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

type region struct{ start, end int }

// String returns s with every detected secret span, across all three
// layers, replaced by "REDACTED".
func String(s string) string {
	var regions []region

	for _, p := range fixedPatterns {
		for _, loc := range p.FindAllStringIndex(s, -1) {
			regions = append(regions, region{loc[0], loc[1]})
		}
	}

	for _, loc := range entropyToken.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			regions = append(regions, region{loc[0], loc[1]})
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(s) {
			if f.Secret == "" {
				continue
			}
			searchFrom := 0
			for {
				idx := strings.Index(s[searchFrom:], f.Secret)
				if idx < 0 {
					break
				}
				abs := searchFrom + idx
				regions = append(regions, region{abs, abs + len(f.Secret)})
				searchFrom = abs + len(f.Secret)
			}
		}
	}

	if len(regions) == 0 {
		return s
	}
	return applyRegions(s, regions)
}

func applyRegions(s string, regions []region) string {
	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	merged := []region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}

	var b strings.Builder
	prev := 0
	for _, r := range merged {
		b.WriteString(s[prev:r.start])
		b.WriteString("REDACTED")
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// Bytes redacts b, returning the original slice (same backing array)
// unchanged when nothing was redacted.
func Bytes(b []byte) []byte {
	s := string(b)
	redacted := String(s)
	if redacted == s {
		return b
	}
	return []byte(redacted)
}

// JSONLBytes is a []byte convenience wrapper around JSONLContent.
func JSONLBytes(b []byte) ([]byte, error) {
	s := string(b)
	redacted, err := JSONLContent(s)
	if err != nil {
		return nil, err
	}
	if redacted == s {
		return b, nil
	}
	return []byte(redacted), nil
}

// JSONLContent parses each line as JSON to find string values needing
// redaction, then performs targeted replacements on the raw bytes of that
// line so lines with no secrets come back byte-for-byte unchanged. This
// keeps a transcript's formatting stable across repeated tailing passes.
func JSONLContent(content string) (string, error) {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			b.WriteString(line)
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			b.WriteString(String(line))
			continue
		}
		repls := collectReplacements(parsed)
		if len(repls) == 0 {
			b.WriteString(line)
			continue
		}
		result := line
		for _, r := range repls {
			origJSON, err := jsonEncodeString(r[0])
			if err != nil {
				return "", err
			}
			replJSON, err := jsonEncodeString(r[1])
			if err != nil {
				return "", err
			}
			result = strings.ReplaceAll(result, origJSON, replJSON)
		}
		b.WriteString(result)
	}
	return b.String(), nil
}

func collectReplacements(v any) [][2]string {
	seen := make(map[string]bool)
	var repls [][2]string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if isOpaquePayload(val) {
				return
			}
			for k, child := range val {
				if isIdentifierField(k) {
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		case string:
			redacted := String(val)
			if redacted != val && !seen[val] {
				seen[val] = true
				repls = append(repls, [2]string{val, redacted})
			}
		}
	}
	walk(v)
	return repls
}

// isIdentifierField excludes keys that hold correlation identifiers, never
// secrets: redacting them would sever the path/session/timestamp link the
// transcript correlator depends on.
func isIdentifierField(key string) bool {
	if key == "signature" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "id") || strings.HasSuffix(lower, "ids")
}

// isOpaquePayload excludes embedded image/base64 blobs, which would
// otherwise dominate and slow the entropy scan without ever being a secret.
func isOpaquePayload(obj map[string]any) bool {
	t, ok := obj["type"].(string)
	return ok && (strings.HasPrefix(t, "image") || t == "base64")
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func jsonEncodeString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("json encode string: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
