package utils

import (
	"fmt"
	"time"
)

// HumanDuration prints whole hours as "24 hours" and anything else in Go's
// duration notation.  Pages and mails use it for the verification window.
func HumanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}
