// backend/utils/labels.go
package utils

import "strings"

// DatasetLabel maps a dataset identifier to the human-readable metric label
// shown by the presentation layer. The first matching substring wins.
func DatasetLabel(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.Contains(k, "confirmed"):
		return "Confirmed"
	case strings.Contains(k, "deaths"):
		return "Deaths"
	case strings.Contains(k, "recovered"):
		return "Recoveries"
	case strings.Contains(k, "active"):
		return "Active Cases"
	}
	return "Unknown"
}

// NormalizeCountry trims the whitespace JHU occasionally leaves around
// country names so that the same country joins across the three series.
func NormalizeCountry(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
