// Package jsonparse extracts structured fields from model output that is
// expected, but not guaranteed, to contain a JSON object. Extraction proceeds
// through ordered tiers and never fails: when every tier comes up empty the
// caller's default is returned with the result flagged degraded.
package jsonparse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Tier identifies which extraction strategy produced a result.
type Tier string

const (
	TierStrict  Tier = "strict"  // whole text parsed as JSON
	TierBraces  Tier = "braces"  // first balanced {...} substring parsed
	TierPattern Tier = "pattern" // named fields matched on the raw text
	TierDefault Tier = "default" // caller-supplied default
)

// Result is the outcome of a tolerant extraction. Degraded is true whenever
// anything other than the strict tier was used.
type Result struct {
	Fields   map[string]any
	Tier     Tier
	Degraded bool
}

// Float returns the named field as a float64 when present and numeric.
func (r Result) Float(key string) (float64, bool) {
	v, ok := r.Fields[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// String returns the named field as a string when present.
func (r Result) String(key string) (string, bool) {
	v, ok := r.Fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	trailingRe  = regexp.MustCompile(`,\s*([}\]])`)
	numFieldRe  = regexp.MustCompile(`"?(\w+)"?\s*:\s*(-?\d+(?:\.\d+)?)`)
	strFieldRe  = regexp.MustCompile(`"(\w+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Extract applies the tiers in order against text. The keys argument lists
// the fields the pattern tier should look for; defaults supplies the
// last-resort values. Extract never returns an error.
func Extract(text string, keys []string, defaults map[string]any) Result {
	text = strings.TrimSpace(text)

	// Tier (a): the whole text is a JSON object.
	if fields := parseObject(text); fields != nil {
		return Result{Fields: fields, Tier: TierStrict}
	}

	// Markdown code fences are common in model output; treat a fenced object
	// as part of the braces tier.
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		if fields := parseObject(m[1]); fields != nil {
			return Result{Fields: fields, Tier: TierBraces, Degraded: true}
		}
	}

	// Tier (b): first balanced {...} substring, with trailing-comma repair.
	if sub := balancedObject(text); sub != "" {
		if fields := parseObject(sub); fields != nil {
			return Result{Fields: fields, Tier: TierBraces, Degraded: true}
		}
		repaired := trailingRe.ReplaceAllString(sub, "$1")
		if fields := parseObject(repaired); fields != nil {
			return Result{Fields: fields, Tier: TierBraces, Degraded: true}
		}
	}

	// Tier (c): pattern search for the requested fields.
	if fields := patternFields(text, keys); len(fields) > 0 {
		return Result{Fields: fields, Tier: TierPattern, Degraded: true}
	}

	// Tier (d): caller default.
	fields := make(map[string]any, len(defaults))
	for k, v := range defaults {
		fields[k] = v
	}
	return Result{Fields: fields, Tier: TierDefault, Degraded: true}
}

func parseObject(text string) map[string]any {
	if !strings.HasPrefix(text, "{") {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil
	}
	return fields
}

// balancedObject returns the first balanced {...} substring of text, or "".
func balancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// patternFields scans the raw text for `key: value` occurrences of the
// requested keys, quoted or not.
func patternFields(text string, keys []string) map[string]any {
	fields := make(map[string]any)
	for _, m := range numFieldRe.FindAllStringSubmatch(text, -1) {
		if !wanted(m[1], keys) {
			continue
		}
		if f, err := strconv.ParseFloat(m[2], 64); err == nil {
			if _, seen := fields[m[1]]; !seen {
				fields[m[1]] = f
			}
		}
	}
	for _, m := range strFieldRe.FindAllStringSubmatch(text, -1) {
		if !wanted(m[1], keys) {
			continue
		}
		if _, seen := fields[m[1]]; !seen {
			fields[m[1]] = unescape(m[2])
		}
	}
	return fields
}

func wanted(key string, keys []string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
