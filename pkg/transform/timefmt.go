package transform

import "time"

// fixedOffsetLayout renders YYYY-MM-DDTHH:mm:ss±HH:mm. The offset comes from
// the local timezone of the process, not the source data's timezone.
const fixedOffsetLayout = "2006-01-02T15:04:05-07:00"

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatFixedOffset renders a timestamp as fixed-offset ISO-8601 in the
// process-local timezone.
func FormatFixedOffset(t time.Time) string {
	return t.In(time.Local).Format(fixedOffsetLayout)
}

// ParseTimestamp attempts to interpret a scalar as a point in time.
func ParseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp reformats a scalar to fixed-offset ISO-8601 when it
// parses as a timestamp; otherwise the value passes through untouched.
func NormalizeTimestamp(value interface{}) interface{} {
	if t, ok := ParseTimestamp(value); ok {
		return FormatFixedOffset(t)
	}
	return value
}
