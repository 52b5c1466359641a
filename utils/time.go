// Package utils provides utility functions for the hydrosim application.
package utils //nolint:revive // utils is a common and acceptable package name

import "fmt"

// FormatClock formats elapsed simulated seconds as minutes:seconds for
// display, truncating fractional seconds. Negative input formats as 0:00.
func FormatClock(elapsedSec float64) string {
	if elapsedSec < 0 {
		elapsedSec = 0
	}
	total := int(elapsedSec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
