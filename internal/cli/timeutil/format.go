// Package timeutil renders the timestamps and uptimes from the health
// payload for human-readable CLI output.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// LocalTimeFormat is the layout for local timestamps in CLI output.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// uptimeUnits, largest first. Leading zero units are omitted, inner ones
// are kept so "3d 0h 30m 15s" reads as a full breakdown.
var uptimeUnits = []struct {
	suffix  string
	seconds int64
}{
	{"d", 86400},
	{"h", 3600},
	{"m", 60},
	{"s", 1},
}

// FormatUptime renders a Go duration string such as "51h4m5s" as
// "2d 3h 4m 5s". Input that does not parse is returned unchanged.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	remaining := int64(d.Seconds())
	var parts []string
	for _, u := range uptimeUnits {
		n := remaining / u.seconds
		remaining %= u.seconds
		if n == 0 && len(parts) == 0 && u.suffix != "s" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
	}
	return strings.Join(parts, " ")
}

// FormatTime converts an RFC3339 timestamp to the local time zone for
// display. Input that does not parse is returned unchanged.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}
