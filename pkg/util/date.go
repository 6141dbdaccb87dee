package util

import (
	"fmt"
	"strconv"
	"strings"
)

// FloorDiv divides a by b rounding toward negative infinity. b must be positive.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// PrevBoundary returns the whole multiple of d immediately before the boundary containing t,
// i.e. floor(t/d - 1) * d. A tick at t therefore lands inside an already-open window.
func PrevBoundary(t int64, d uint64) int64 {
	if d == 0 {
		return t
	}
	w := int64(d)
	return (FloorDiv(t, w) - 1) * w
}

// ParseDurationLabel parses short duration labels like "1s", "15m", "1h", "1d" into seconds.
// A bare integer is taken as seconds.
func ParseDurationLabel(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration label")
	}
	unit := uint64(1)
	num := s
	switch s[len(s)-1] {
	case 's':
		num = s[:len(s)-1]
	case 'm':
		unit, num = 60, s[:len(s)-1]
	case 'h':
		unit, num = 3600, s[:len(s)-1]
	case 'd':
		unit, num = 86400, s[:len(s)-1]
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid duration label %q", s)
	}
	return n * unit, nil
}

// FormatDurationLabel renders seconds using the largest whole unit: 300 -> "5m", 3600 -> "1h".
func FormatDurationLabel(secs uint64) string {
	switch {
	case secs == 0:
		return "0s"
	case secs%86400 == 0:
		return strconv.FormatUint(secs/86400, 10) + "d"
	case secs%3600 == 0:
		return strconv.FormatUint(secs/3600, 10) + "h"
	case secs%60 == 0:
		return strconv.FormatUint(secs/60, 10) + "m"
	default:
		return strconv.FormatUint(secs, 10) + "s"
	}
}
