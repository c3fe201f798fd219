package normalize

import (
	"encoding/json"
	"strconv"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05",
}

// millisThreshold separates unix seconds from unix milliseconds.
const millisThreshold = 1e11

// ParseTime accepts the timestamp shapes seen in rows. Anything else yields the zero time,
// which sorts as earliest.
func ParseTime(v any) time.Time {
	switch x := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return x
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t
			}
		}
		if n, err := strconv.ParseFloat(x, 64); err == nil {
			return fromUnix(n)
		}
	case json.Number:
		if n, err := x.Float64(); err == nil {
			return fromUnix(n)
		}
	case float64:
		return fromUnix(x)
	case int64:
		return fromUnix(float64(x))
	case int:
		return fromUnix(float64(x))
	}
	return time.Time{}
}

func fromUnix(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n >= millisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
