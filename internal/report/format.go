package report

import "fmt"

// FormatTimePassed renders a duration in milliseconds.
func FormatTimePassed(ms int64) string {
	return fmt.Sprintf("%dms", ms)
}

// FormatSize renders a byte count in kB, switching to MB above 999994 bytes so
// that values never round up to "1000.00 kB".
func FormatSize(bytes int64) string {
	if bytes > 999994 {
		return fmt.Sprintf("%.2f MB", float64(bytes)/1000000)
	}
	return fmt.Sprintf("%.2f kB", float64(bytes)/1000)
}
