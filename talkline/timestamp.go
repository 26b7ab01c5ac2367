package talkline

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ClockStamp formats t as HH:MM:SS.mmm (24-hour, millisecond
// precision). This is the wire format for message times. Client clocks
// are untrusted across machines; ordering always comes from the
// server's persistence order, never from comparing stamps.
func ClockStamp(t time.Time) string {
	return t.Format("15:04:05.000")
}

var clockPrefix = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

// DisplayTime renders a clock stamp for display as 12-hour "h:mm am".
// Lossy and strictly one-way: the result is never parsed back.
// Unrecognized input is returned unchanged.
func DisplayTime(stamp string) string {
	m := clockPrefix.FindStringSubmatch(stamp)
	if m == nil {
		return stamp
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return stamp
	}
	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	hour = hour % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%s %s", hour, m[2], suffix)
}
