// Package stringduration renders durations for humans
package stringduration

import (
	"fmt"
	"time"
)

// Uptime formats d as days, hours and minutes, e.g. "2j 3h 4m", dropping leading zero units
func Uptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%vs", int64(d/time.Second))
	}

	days := int64(d / (24 * time.Hour))
	h := int64((d % (24 * time.Hour)) / time.Hour)
	m := int64((d % time.Hour) / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%vj %vh %vm", days, h, m)
	case h > 0:
		return fmt.Sprintf("%vh %vm", h, m)
	default:
		return fmt.Sprintf("%vm", m)
	}
}
