package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// CleanHTML strips HTML tags and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}

// FormatDuration renders seconds as M:SS (minutes are not folded into hours).
// nil renders as "--:--".
func FormatDuration(seconds *int64) string {
	if seconds == nil || *seconds < 0 {
		return "--:--"
	}
	s := *seconds
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatCount renders a count compactly: 999, 1.5K, 2.4M, 3.1B.
func FormatCount(n int64) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	if n < 1000 {
		return sign + strconv.FormatInt(n, 10)
	}
	units := []string{"K", "M", "B", "T"}
	v := float64(n)
	for i, u := range units {
		v /= 1000
		rounded := strconv.FormatFloat(v, 'f', 1, 64)
		// 999_999 rounds to "1000.0" K: promote to the next unit.
		if (rounded == "1000.0" || v >= 1000) && i < len(units)-1 {
			continue
		}
		return sign + strings.TrimSuffix(rounded, ".0") + u
	}
	return sign + strconv.FormatInt(n, 10)
}

var countRe = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*([KMB])?`)

// ParseCount reads a display count like "1.2M subscribers" or "12,345 views".
// Returns 0 when no number is present.
func ParseCount(s string) int64 {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		v *= 1e3
	case "M":
		v *= 1e6
	case "B":
		v *= 1e9
	}
	return int64(v + 0.5)
}
