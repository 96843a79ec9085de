package tsq

import "github.com/go-faster/errors"

// Validate checks the query before planning. It fails fast so that the
// planner never starts building a graph from a malformed query.
func (q *Query) Validate() error {
	if q.Time.Start == "" {
		return errors.New("time range start is required")
	}
	if q.Time.Aggregator == "" {
		return errors.New("time range aggregator is required")
	}
	if q.Time.Downsampler != nil {
		if err := q.Time.Downsampler.validate(); err != nil {
			return errors.Wrap(err, "query downsampler")
		}
	}
	if len(q.Metrics) == 0 {
		return errors.New("at least one metric is required")
	}

	filters := map[string]struct{}{}
	for _, f := range q.Filters {
		if f.ID == "" {
			return errors.New("filter id is required")
		}
		if _, ok := filters[f.ID]; ok {
			return errors.Errorf("duplicate filter %q", f.ID)
		}
		filters[f.ID] = struct{}{}
	}

	metrics := map[string]struct{}{}
	for _, m := range q.Metrics {
		if m.ID == "" {
			return errors.New("metric id is required")
		}
		if _, ok := metrics[m.ID]; ok {
			return errors.Errorf("duplicate metric %q", m.ID)
		}
		metrics[m.ID] = struct{}{}
		if m.Metric == "" {
			return errors.Errorf("metric %q: metric name is required", m.ID)
		}
		if m.FilterRef != "" {
			if _, ok := filters[m.FilterRef]; !ok {
				return errors.Errorf("metric %q: filter %q is not defined", m.ID, m.FilterRef)
			}
		}
		if m.Downsampler != nil {
			if err := m.Downsampler.validate(); err != nil {
				return errors.Wrapf(err, "metric %q: downsampler", m.ID)
			}
		}
	}
	return nil
}

func (d Downsampler) validate() error {
	if d.Interval == "" {
		return errors.New("interval is required")
	}
	if d.Aggregator == "" {
		return errors.New("aggregator is required")
	}
	if d.Fill != "" {
		if _, err := ParseFillPolicy(string(d.Fill)); err != nil {
			return err
		}
	}
	if _, err := d.Location(); err != nil {
		return errors.Wrap(err, "timezone")
	}
	return nil
}
