// Package durations parses and renders the duration strings used by
// moderation commands, like "1d12h" or "2w". time.ParseDuration stops
// at hours, so days and weeks are handled here.
package durations

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(?i)^(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Parse converts a compact duration string into a time.Duration.
// Units may be omitted but must appear in w, d, h, m, s order.
func Parse(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("empty duration")
	}

	match := durationPattern.FindStringSubmatch(input)
	if match == nil {
		return 0, fmt.Errorf("invalid duration: %s", input)
	}

	units := []time.Duration{week, day, time.Hour, time.Minute, time.Second}

	var total time.Duration
	var matched bool
	for i, unit := range units {
		group := match[i+1]
		if group == "" {
			continue
		}
		count, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", input)
		}
		total += time.Duration(count) * unit
		matched = true
	}

	if !matched || total <= 0 {
		return 0, fmt.Errorf("invalid duration: %s", input)
	}

	return total, nil
}

// Humanize renders a duration as "1 week 2 days 3 hours", dropping
// zero components.
func Humanize(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}

	parts := []struct {
		unit time.Duration
		name string
	}{
		{week, "week"},
		{day, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}

	var out []string
	remaining := d
	for _, part := range parts {
		count := remaining / part.unit
		if count == 0 {
			continue
		}
		remaining -= count * part.unit

		name := part.name
		if count > 1 {
			name += "s"
		}
		out = append(out, fmt.Sprintf("%d %s", count, name))
	}

	if len(out) == 0 {
		return "less than a second"
	}
	return strings.Join(out, " ")
}
