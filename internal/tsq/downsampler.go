package tsq

import "time"

// Downsampler reduces series resolution by aggregating samples into fixed
// time buckets.
type Downsampler struct {
	// Interval is the bucket size, e.g. "1h".
	Interval string
	// Aggregator combines samples within a bucket.
	Aggregator string
	// Fill is the policy for empty buckets. Empty means unset: empty
	// buckets are skipped.
	Fill FillPolicy
	// FillValue is the scalar emitted when Fill is FillScalar.
	FillValue float64
	// Timezone aligns calendar-based buckets, e.g. "America/Denver".
	// Optional.
	Timezone string
}

// Location resolves the downsampler timezone. Returns nil without error
// when no timezone is set.
func (d Downsampler) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return nil, nil
	}
	return time.LoadLocation(d.Timezone)
}
