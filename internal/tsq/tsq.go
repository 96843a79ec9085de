// Package tsq defines the declarative time series query model.
package tsq

import "math"

// Query is a declarative time series query: a shared time range, a set of
// named filters and one or more metrics to fetch.
//
// A query is immutable once submitted to the planner.
type Query struct {
	Time    TimeRange
	Filters []Filter
	Metrics []Metric
}

// Filter returns the named filter, if any.
func (q *Query) Filter(id string) (Filter, bool) {
	for _, f := range q.Filters {
		if f.ID == id {
			return f, true
		}
	}
	return Filter{}, false
}

// Sub derives a single-metric query: the original time range, the given
// metric and, if the metric references one, its filter.
func (q *Query) Sub(m Metric) *Query {
	sub := &Query{
		Time:    q.Time,
		Metrics: []Metric{m},
	}
	if m.FilterRef != "" {
		if f, ok := q.Filter(m.FilterRef); ok {
			sub.Filters = []Filter{f}
		}
	}
	return sub
}

// TimeRange is the query time span together with query-wide defaults.
type TimeRange struct {
	// Start of the range, e.g. "1h-ago" or an absolute timestamp.
	Start string
	// End of the range. Empty means "now".
	End string
	// Aggregator applied to every metric that does not override it.
	Aggregator string
	// Downsampler applied to every metric that does not override it.
	Downsampler *Downsampler
}

// Metric names a single series set to fetch and how to process it.
type Metric struct {
	// ID identifies the metric within the query. Must be unique.
	ID string
	// Metric is the series name in storage.
	Metric string
	// FilterRef names a filter of the enclosing query. Optional.
	FilterRef string
	// Aggregator overrides the query-wide aggregator. Optional.
	Aggregator string
	// Downsampler overrides the query-wide downsampler. Optional.
	Downsampler *Downsampler
	// Rate converts the series to a rate of change.
	Rate bool
	// RateOptions tune the rate conversion. Optional.
	RateOptions *RateOptions
}

// RateOptions tune counter-to-rate conversion.
type RateOptions struct {
	// Counter marks the series as a monotonically increasing counter.
	Counter bool
	// CounterMax is the value at which the counter rolls over.
	CounterMax int64
	// ResetValue drops computed rates above this threshold as resets.
	ResetValue int64
	// DropResets drops rollover data points instead of correcting them.
	DropResets bool
}

// DefaultRateOptions returns rate options for metrics that set the rate
// flag without tuning it.
func DefaultRateOptions() RateOptions {
	return RateOptions{
		CounterMax: math.MaxInt64,
	}
}
