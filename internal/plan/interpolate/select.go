package interpolate

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/go-faster/tsplan/internal/tsq"
)

// ForDownsample selects the interpolation config for a downsample node.
//
// The numeric entry carries the downsampler fill policy and the
// non-interpolating implementation. With rollup metadata present a summary
// entry is added expecting the one summary the downsampler aggregates;
// "avg" over rollups cannot be read from a single stored summary, so its
// entry is marked synchronized with a sum component.
func ForDownsample(reg *Registry, ds tsq.Downsampler, rollups RollupSource) (Config, error) {
	def, err := reg.Get(Default)
	if err != nil {
		return Config{}, err
	}
	policy := ds.Fill
	if policy == "" {
		policy = tsq.FillNone
	}
	cfg := Config{
		Numeric: NumericEntry{
			Fill:         policy,
			RealFill:     RealFillNone,
			Interpolator: def,
		},
	}
	if rollups == nil {
		return cfg, nil
	}

	id, err := summaryID(rollups, ds.Aggregator)
	if err != nil {
		return Config{}, err
	}
	summary := &SummaryEntry{
		Fill:         policy,
		RealFill:     RealFillNone,
		Interpolator: def,
		Rollups:      rollups,
		Expected:     []int{id},
	}
	if lower(ds.Aggregator) == "avg" {
		summary.Sync = true
		summary.Component = "sum"
	}
	cfg.Summary = summary
	return cfg, nil
}

// ForGroupBy selects the interpolation config for a group-by node.
//
// The fill policy follows the downsampler when one is resolved for the
// metric, otherwise nothing is filled. Aggregators that sum or track
// min/max across misaligned series (zimsum, mimmax, mimmin) must not
// invent samples, so they get the non-interpolating implementation; every
// other aggregator interpolates linearly.
func ForGroupBy(reg *Registry, q *tsq.Query, m tsq.Metric, ds *tsq.Downsampler, rollups RollupSource) (Config, error) {
	policy := tsq.FillNone
	if ds != nil && ds.Fill != "" {
		policy = ds.Fill
	}
	agg := lower(m.Aggregator)
	if agg == "" {
		agg = lower(q.Time.Aggregator)
	}

	name := LERP
	if strings.Contains(agg, "zimsum") ||
		strings.Contains(agg, "mimmax") ||
		strings.Contains(agg, "mimmin") {
		name = Default
	}
	factory, err := reg.Get(name)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Numeric: NumericEntry{
			Fill:         policy,
			RealFill:     RealFillNone,
			Interpolator: factory,
		},
	}
	if rollups == nil {
		return cfg, nil
	}

	summary := &SummaryEntry{
		Fill:         policy,
		RealFill:     RealFillNone,
		Interpolator: factory,
		Rollups:      rollups,
	}
	switch {
	case ds != nil:
		// Downsampling upstream reads a single summary.
		id, err := summaryID(rollups, ds.Aggregator)
		if err != nil {
			return Config{}, err
		}
		summary.Expected = []int{id}
	case agg == "avg":
		// No pre-aggregation to lean on: reconstruct the average
		// from the synchronized sum and count summaries.
		sum, err := rollups.SummaryID("sum")
		if err != nil {
			return Config{}, errors.Wrap(err, "resolve sum summary")
		}
		count, err := rollups.SummaryID("count")
		if err != nil {
			return Config{}, errors.Wrap(err, "resolve count summary")
		}
		summary.Expected = []int{sum, count}
		summary.Sync = true
		summary.Component = "sum"
	default:
		id, err := summaryID(rollups, agg)
		if err != nil {
			return Config{}, err
		}
		summary.Expected = []int{id}
	}
	cfg.Summary = summary
	return cfg, nil
}
