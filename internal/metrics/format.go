package metrics

import (
	"fmt"
	"strings"
	"time"
)

// FormatMMSS renders a duration in seconds as "MMm SSs", or "-" when absent.
func FormatMMSS(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	total := int64(*seconds)
	return fmt.Sprintf("%02dm %02ds", total/60, total%60)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime reads a window bound. Values without a zone are taken as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q, want RFC3339 or YYYY-MM-DD[ HH:MM:SS]", raw)
}

// ParseWindow builds a Window from optional textual bounds.
func ParseWindow(start, end string) (Window, error) {
	var w Window
	if strings.TrimSpace(start) != "" {
		t, err := ParseTime(start)
		if err != nil {
			return Window{}, fmt.Errorf("start: %w", err)
		}
		w.Start = &t
	}
	if strings.TrimSpace(end) != "" {
		t, err := ParseTime(end)
		if err != nil {
			return Window{}, fmt.Errorf("end: %w", err)
		}
		w.End = &t
	}
	return w, w.Validate()
}
