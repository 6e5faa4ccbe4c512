package reconcile

import (
	"log/slog"
	"strings"
	"time"
)

// PrimaryLayout is the timestamp layout written by the message exporters.
const PrimaryLayout = "2006-01-02 15:04:05"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ResolveTimestamp maps value to an instant. The primary layout is read in
// local time; ISO-8601 forms are tried next with a trailing "Z" read as UTC.
// Values that match nothing resolve to the zero time so they sort first.
func ResolveTimestamp(value string, logger *slog.Logger) time.Time {
	value = strings.TrimSpace(value)

	if t, err := time.ParseInLocation(PrimaryLayout, value, time.Local); err == nil {
		return t
	}

	iso := value
	if strings.HasSuffix(iso, "Z") {
		iso = strings.TrimSuffix(iso, "Z") + "+00:00"
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, iso, time.Local); err == nil {
			return t
		}
	}

	if logger != nil {
		logger.Warn("could not parse timestamp", "timestamp", value)
	}
	return time.Time{}
}
