package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats d as 850ms, 2.5s or 3m12.0s.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatPercent formats a ratio in [0, 1] as a percentage.
func FormatPercent(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

// FormatMeanStd formats an accuracy as "91.2% (+/- 3.4%)".
func FormatMeanStd(mean, std float64) string {
	return fmt.Sprintf("%s (+/- %s)", FormatPercent(mean), FormatPercent(std))
}

// FormatBytes formats a size such as a record file.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
