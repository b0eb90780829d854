// Package normalize holds the field-level coercion helpers used by the
// contract assembler. Every function is total: bad input falls back to a
// caller-supplied default or to the original value, never to an error.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var monthMap = map[string]string{
	"JAN": "01", "FEV": "02", "MAR": "03", "ABR": "04",
	"MAI": "05", "JUN": "06", "JUL": "07", "AGO": "08",
	"SET": "09", "OUT": "10", "NOV": "11", "DEZ": "12",
}

var monthRefRe = regexp.MustCompile(`^\d{2}/\d{4}$`)

// ToFloat coerces a dynamic value to float64. Strings may use Brazilian
// currency notation ("R$ 1.234,56"); anything unconvertible yields def.
func ToFloat(v any, def float64) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		s := strings.ReplaceAll(x, "R$", "")
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// ToInt coerces a dynamic value to int, truncating floats and parsing
// numeric strings. Unconvertible input yields def.
func ToInt(v any, def int) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return def
		}
		return int(f)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
		return def
	default:
		return def
	}
}

// ToBool applies truthiness coercion: false for nil, false, zero numbers,
// and empty/"false"/"0" strings; true otherwise.
func ToBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case json.Number:
		f, _ := x.Float64()
		return f != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s != "" && s != "false" && s != "0"
	default:
		return true
	}
}

// Str stringifies a dynamic value and trims surrounding whitespace.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strings.TrimSpace(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", x))
	}
}

// MonthReference converts a Portuguese month abbreviation reference
// ("OUT/2025", "OUT/25") into numeric "MM/AAAA" form. Two-digit years
// expand with the <=50 -> 20xx, >50 -> 19xx rule. Input already in
// "MM/AAAA" form, or in any unrecognized form, is returned unchanged.
func MonthReference(mesRef string) string {
	s := strings.ToUpper(strings.TrimSpace(mesRef))
	if s == "" {
		return mesRef
	}
	if monthRefRe.MatchString(s) {
		return s
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return mesRef
	}
	abbrev := strings.TrimSpace(parts[0])
	year := strings.TrimSpace(parts[1])
	if len(year) == 2 {
		n, err := strconv.Atoi(year)
		if err != nil {
			return mesRef
		}
		if n <= 50 {
			year = fmt.Sprintf("20%02d", n)
		} else {
			year = fmt.Sprintf("19%02d", n)
		}
	}
	mm, ok := monthMap[abbrev]
	if !ok {
		return mesRef
	}
	return mm + "/" + year
}

// CEP reformats a Brazilian postal code to "XX.XXX-XXX" when exactly eight
// digits remain after stripping non-digits; otherwise the input is
// returned unchanged.
func CEP(cep string) string {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(cep) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 8 {
		return cep
	}
	return d[:2] + "." + d[2:5] + "-" + d[5:]
}

// Key normalizes an identifier for case/punctuation-insensitive lookup:
// lowercase, [a-z0-9] kept, runs of anything else collapsed into a single
// '-', leading/trailing separators trimmed ("CEMIG-D" -> "cemig-d").
func Key(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var out strings.Builder
	lastSep := true
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			out.WriteRune(ch)
			lastSep = false
			continue
		}
		if !lastSep {
			out.WriteByte('-')
			lastSep = true
		}
	}
	return strings.TrimSuffix(out.String(), "-")
}
