package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"KlineStream/pkg/util"
)

// ErrInvalidWindow is returned when a label or routing key names no configured window.
var ErrInvalidWindow = errors.New("invalid time window")

// keyPrefix prefixes the bus routing key of every window ("key_60").
const keyPrefix = "key_"

// TimeWindow is an aggregation granularity measured in whole seconds.
type TimeWindow uint64

const (
	OneSecond   TimeWindow = 1
	OneMinute   TimeWindow = 60
	FiveMinutes TimeWindow = 300
	OneHour     TimeWindow = 3600
)

// DefaultWindowLabels are the windows enabled when configuration names none.
var DefaultWindowLabels = []string{"1s", "1m", "5m", "1h"}

// Seconds returns the window duration in seconds.
func (w TimeWindow) Seconds() uint64 { return uint64(w) }

// Label is the short subscriber-facing name ("1s", "5m", "1h").
func (w TimeWindow) Label() string { return util.FormatDurationLabel(uint64(w)) }

// Key is the bus routing key for records of this window.
func (w TimeWindow) Key() string { return keyPrefix + strconv.FormatUint(uint64(w), 10) }

func (w TimeWindow) String() string { return w.Label() }

// ParseKey decodes a routing key produced by Key.
func ParseKey(key string) (TimeWindow, error) {
	if !strings.HasPrefix(key, keyPrefix) {
		return 0, fmt.Errorf("%w: key %q", ErrInvalidWindow, key)
	}
	n, err := strconv.ParseUint(key[len(keyPrefix):], 10, 64)
	if err != nil || n == 0 || TimeWindow(n).Key() != key {
		return 0, fmt.Errorf("%w: key %q", ErrInvalidWindow, key)
	}
	return TimeWindow(n), nil
}

// WindowSet is the immutable, ordered set of windows enabled for the process.
// It is built once at startup and shared read-only by every component.
type WindowSet struct {
	windows []TimeWindow
	byLabel map[string]TimeWindow
	byKey   map[string]TimeWindow
}

// NewWindowSet builds a set from labels such as "1s" or "5m". Duplicates are rejected.
func NewWindowSet(labels []string) (*WindowSet, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one time window is required")
	}
	ws := &WindowSet{
		windows: make([]TimeWindow, 0, len(labels)),
		byLabel: make(map[string]TimeWindow, len(labels)),
		byKey:   make(map[string]TimeWindow, len(labels)),
	}
	for _, l := range labels {
		secs, err := util.ParseDurationLabel(l)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		w := TimeWindow(secs)
		if _, dup := ws.byKey[w.Key()]; dup {
			return nil, fmt.Errorf("duplicate time window %s", w.Label())
		}
		ws.windows = append(ws.windows, w)
		ws.byLabel[w.Label()] = w
		ws.byKey[w.Key()] = w
	}
	return ws, nil
}

// MustWindowSet is NewWindowSet for static label lists; it panics on error.
func MustWindowSet(labels ...string) *WindowSet {
	ws, err := NewWindowSet(labels)
	if err != nil {
		panic(err)
	}
	return ws
}

// Windows returns a copy of the configured windows in configuration order.
func (s *WindowSet) Windows() []TimeWindow {
	out := make([]TimeWindow, len(s.windows))
	copy(out, s.windows)
	return out
}

// Len returns the number of configured windows.
func (s *WindowSet) Len() int { return len(s.windows) }

// Labels returns the subscriber-facing labels in configuration order.
func (s *WindowSet) Labels() []string {
	out := make([]string, len(s.windows))
	for i, w := range s.windows {
		out[i] = w.Label()
	}
	return out
}

// Contains reports whether w is configured.
func (s *WindowSet) Contains(w TimeWindow) bool {
	_, ok := s.byKey[w.Key()]
	return ok
}

// ParseLabel resolves a subscriber label. Only exact configured labels are recognized.
func (s *WindowSet) ParseLabel(label string) (TimeWindow, error) {
	if w, ok := s.byLabel[label]; ok {
		return w, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidWindow, label)
}

// ParseKey resolves a bus routing key to a configured window. Well-formed keys
// of windows this process does not aggregate are rejected too.
func (s *WindowSet) ParseKey(key string) (TimeWindow, error) {
	w, err := ParseKey(key)
	if err != nil {
		return 0, err
	}
	if !s.Contains(w) {
		return 0, fmt.Errorf("%w: %s not configured", ErrInvalidWindow, w.Label())
	}
	return w, nil
}
