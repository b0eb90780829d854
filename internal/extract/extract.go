// Package extract recovers a JSON value from raw vision-model output. The
// heuristics are deliberately narrow: they target the failure modes of one
// model family (markdown fences, chat-template tokens, interleaved
// diagnostic lines, truncated or trailing-comma JSON, comma decimals).
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

const snippetLen = 500

// turnMarker is the chat-template token that opens the assistant turn.
// Anything before it is prompt echo, not model output.
const turnMarker = "<|im_start|>assistant"

// noiseMarkers flags diagnostic lines interleaved by the inference process.
// Matched case-insensitively as substrings.
var noiseMarkers = []string{
	"deprecated",
	"calling",
	"python -m",
	"==========",
	"files:",
	"prompt:",
}

var (
	fenceOpenRe    = regexp.MustCompile("(?i)```json\\s*\\n?")
	fenceBareRe    = regexp.MustCompile("(?im)^\\s*```\\s*\\n?")
	fenceCloseRe   = regexp.MustCompile("(?im)\\n?\\s*```\\s*$")
	controlTokenRe = regexp.MustCompile(`<\|[^|>]*\|>`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	decimalComma   = regexp.MustCompile(`(\d),(\d)`)
	greedyArrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
	greedyObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// NotFoundError reports that no parseable JSON could be recovered. It
// carries a truncated copy of the offending text for diagnostics.
type NotFoundError struct {
	Snippet string
}

func (e *NotFoundError) Error() string {
	return "no JSON found in model output: " + e.Snippet
}

// JSON extracts the first parseable JSON value (object or array) from
// free-form model output text. The fallback chain is ordered; the first
// success wins. Callers treat an error as "no data from this source".
func JSON(text string) (any, error) {
	t := strings.TrimSpace(text)
	t = stripFences(t)
	t = stripNoise(t)
	t = afterTurnMarker(t)
	t = strings.TrimSpace(t)

	// Exact array or object after cleanup parses directly.
	if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
		if v, err := parse(t); err == nil {
			return v, nil
		}
	}
	if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
		if v, err := parse(t); err == nil {
			return v, nil
		}
	}

	// Brace-balanced scan. More than one candidate means the model echoed
	// an example before the real answer; pick the plausible one.
	if candidates := balancedObjects(t); len(candidates) > 0 {
		if v, ok := pickCandidate(candidates); ok {
			return v, nil
		}
	}

	// Truncated output: no balanced candidate parsed, so take everything
	// up to the last closing brace seen, repair trailing commas and append
	// the closers the model never emitted.
	if start := strings.Index(t, "{"); start >= 0 {
		if end := strings.LastIndex(t, "}"); end > start {
			frag := trailingComma.ReplaceAllString(t[start:end+1], "$1")
			if v, err := parse(frag); err == nil {
				return v, nil
			}
			if v, err := parse(closeBrackets(frag)); err == nil {
				return v, nil
			}
		}
	}

	if v, ok := balancedArray(t); ok {
		return v, nil
	}

	// Last resort: greediest span, trailing commas stripped.
	if m := greedyArrayRe.FindString(t); m != "" {
		if v, err := parse(trailingComma.ReplaceAllString(m, "$1")); err == nil {
			return v, nil
		}
	}
	if m := greedyObjectRe.FindString(t); m != "" {
		if v, err := parse(trailingComma.ReplaceAllString(m, "$1")); err == nil {
			return v, nil
		}
	}

	return nil, &NotFoundError{Snippet: snippet(t)}
}

// parse converts Brazilian decimal commas sitting between two digits into
// periods, then unmarshals. The conversion runs on the extracted JSON text
// only, never on the whole raw response.
func parse(s string) (any, error) {
	for {
		fixed := decimalComma.ReplaceAllString(s, "$1.$2")
		if fixed == s {
			break
		}
		s = fixed
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return nil, &NotFoundError{Snippet: snippet(s)}
	}
}

func stripFences(s string) string {
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceCloseRe.ReplaceAllString(s, "")
	return fenceBareRe.ReplaceAllString(s, "")
}

// stripNoise drops diagnostic lines. Dropping starts when a noise marker is
// seen and stops as soon as a line carries an opening brace or bracket.
func stripNoise(s string) string {
	lines := strings.Split(s, "\n")
	filtered := make([]string, 0, len(lines))
	skip := false
	for _, line := range lines {
		low := strings.ToLower(strings.TrimSpace(line))
		noisy := false
		for _, marker := range noiseMarkers {
			if strings.Contains(low, marker) {
				noisy = true
				break
			}
		}
		if noisy {
			skip = true
			continue
		}
		if strings.ContainsAny(line, "{[") {
			skip = false
		}
		if !skip {
			filtered = append(filtered, line)
		}
	}
	return strings.Join(filtered, "\n")
}

// afterTurnMarker keeps only the assistant turn when the chat-template
// marker leaked into the output, then removes residual control tokens.
func afterTurnMarker(s string) string {
	if idx := strings.Index(s, turnMarker); idx >= 0 {
		s = s[idx+len(turnMarker):]
	}
	return controlTokenRe.ReplaceAllString(s, "")
}

// balancedObjects returns every top-level brace-balanced span, tracking
// string literals and backslash escapes so braces inside quoted values do
// not affect the depth count.
func balancedObjects(s string) []string {
	var out []string
	depth := 0
	start := -1
	inStr := false
	escape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// pickCandidate parses candidates in order. With multiple parseable
// candidates it prefers the one carrying a consumo_lista of at most 13
// entries (the real answer, not an echoed example); otherwise the first
// parseable candidate wins.
func pickCandidate(candidates []string) (any, bool) {
	var first any
	found := false
	for _, c := range candidates {
		v, err := parse(c)
		if err != nil {
			continue
		}
		if !found {
			first = v
			found = true
			if len(candidates) == 1 {
				return first, true
			}
		}
		if m, ok := v.(map[string]any); ok {
			if lst, ok := m["consumo_lista"].([]any); ok && len(lst) <= 13 {
				return v, true
			}
		}
	}
	return first, found
}

// closeBrackets appends the closing braces and brackets a truncated
// fragment is missing, in nesting order. String literals are skipped the
// same way the balance scanners skip them.
func closeBrackets(s string) string {
	var stack []byte
	inStr := false
	escape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// balancedArray extracts and parses the first bracket-balanced array span.
func balancedArray(s string) (any, bool) {
	depth := 0
	start := -1
	inStr := false
	escape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch c {
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					if v, err := parse(s[start : i+1]); err == nil {
						return v, true
					}
					start = -1
				}
			}
		}
	}
	return nil, false
}

func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	return s[:snippetLen]
}
