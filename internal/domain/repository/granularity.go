package repository

// Granularity is the bucket size a stored series is aggregated to.
type Granularity string

const (
	GranRaw   Granularity = "raw"
	GranDay   Granularity = "day"
	GranWeek  Granularity = "week"
	GranMonth Granularity = "month"
)

// IsValidGranularity returns true if g is supported.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case GranRaw, GranDay, GranWeek, GranMonth:
		return true
	default:
		return false
	}
}

// DefaultGranularity returns daily buckets.
func DefaultGranularity() Granularity { return GranDay }

// NormalizeGranularity converts a raw string to a valid granularity (or default).
func NormalizeGranularity(s string) Granularity {
	g := Granularity(s)
	if IsValidGranularity(g) {
		return g
	}
	return DefaultGranularity()
}
