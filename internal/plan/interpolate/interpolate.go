// Package interpolate selects fill and interpolation policies for query
// pipeline nodes.
//
// A node that aligns series (downsampling, grouping) must know how to
// produce values at timestamps where no raw sample exists. When the storage
// backend keeps pre-aggregated rollup summaries the node must additionally
// know which stored summaries to expect, and for derived aggregators such
// as "avg" how to reconstruct the value from a synchronized pair of
// summaries.
package interpolate

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/go-faster/tsplan/internal/tsq"
)

// ValueType tags an interpolation entry with the data type it applies to.
type ValueType string

const (
	// TypeNumeric is a plain numeric series.
	TypeNumeric ValueType = "numeric"
	// TypeNumericSummary is a series of pre-aggregated rollup summaries.
	TypeNumericSummary ValueType = "numeric_summary"
)

// FillWithReal is the policy for substituting a real neighboring value
// instead of a synthetic fill.
type FillWithReal string

const (
	// RealFillNone never substitutes a real value.
	RealFillNone FillWithReal = "none"
	// RealFillPreferNext substitutes the next real value when present.
	RealFillPreferNext FillWithReal = "prefer_next"
	// RealFillPreferPrevious substitutes the previous real value when
	// present.
	RealFillPreferPrevious FillWithReal = "prefer_previous"
)

// RollupSource exposes the rollup metadata of a storage backend: which
// stored summary holds the data for a given aggregator.
//
// Backends without rollup summaries have no RollupSource.
type RollupSource interface {
	// SummaryID resolves the stored summary identifier for an
	// aggregator.
	SummaryID(aggregator string) (int, error)
}

// Config describes, per value type, how a node fills missing values.
//
// Numeric is always present. Summary is present only when the backend
// provides rollup metadata.
type Config struct {
	Numeric NumericEntry
	Summary *SummaryEntry
}

// NumericEntry is the fill behavior for plain numeric values.
type NumericEntry struct {
	Fill         tsq.FillPolicy
	RealFill     FillWithReal
	Interpolator Factory
}

// SummaryEntry is the fill behavior for rollup summary values.
type SummaryEntry struct {
	// Fill and RealFill are the defaults for summaries without an
	// explicit override.
	Fill         tsq.FillPolicy
	RealFill     FillWithReal
	Interpolator Factory
	// Rollups is the backend rollup metadata the node resolves
	// summaries against.
	Rollups RollupSource
	// Expected lists the stored summary identifiers the node must read.
	Expected []int
	// Sync marks Expected as a synchronized set: all summaries of a
	// timestamp must be present and are combined with Component.
	Sync bool
	// Component is the aggregator combining synchronized summaries.
	Component string
}

// RollupAggregation maps a query aggregator to the aggregator rollup
// summaries are stored under.
func RollupAggregation(aggregator string) string {
	switch agg := lower(aggregator); agg {
	case "zimsum":
		return "sum"
	case "mimmax":
		return "max"
	case "mimmin":
		return "min"
	default:
		return agg
	}
}

func lower(s string) string { return strings.ToLower(s) }

func summaryID(rollups RollupSource, aggregator string) (int, error) {
	id, err := rollups.SummaryID(RollupAggregation(aggregator))
	if err != nil {
		return 0, errors.Wrapf(err, "resolve summary for %q", aggregator)
	}
	return id, nil
}
