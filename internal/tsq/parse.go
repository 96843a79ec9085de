package tsq

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ParseQuery parses the JSON query document.
//
// The document mirrors the classic TSDB HTTP query layout:
//
//	{
//	  "time": {
//	    "start": "1h-ago",
//	    "aggregator": "sum",
//	    "downsampler": {"interval": "1m", "aggregator": "avg"}
//	  },
//	  "filters": [
//	    {"id": "f1", "tags": [
//	      {"tagk": "host", "filter": "web*", "type": "wildcard", "groupBy": true}
//	    ]}
//	  ],
//	  "metrics": [
//	    {"id": "m1", "metric": "sys.cpu.user", "filter": "f1", "rate": true}
//	  ]
//	}
//
// The parsed query is validated before it is returned.
func ParseQuery(data []byte) (*Query, error) {
	d := jx.DecodeBytes(data)
	q := &Query{}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "time":
			return decodeTime(d, &q.Time)
		case "filters":
			return d.Arr(func(d *jx.Decoder) error {
				f, err := decodeFilter(d)
				if err != nil {
					return err
				}
				q.Filters = append(q.Filters, f)
				return nil
			})
		case "metrics":
			return d.Arr(func(d *jx.Decoder) error {
				m, err := decodeMetric(d)
				if err != nil {
					return err
				}
				q.Metrics = append(q.Metrics, m)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode query")
	}
	if err := q.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate query")
	}
	return q, nil
}

func decodeTime(d *jx.Decoder, t *TimeRange) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "start":
			t.Start, err = d.Str()
		case "end":
			t.End, err = d.Str()
		case "aggregator":
			t.Aggregator, err = d.Str()
		case "downsampler":
			var ds Downsampler
			if err := decodeDownsampler(d, &ds); err != nil {
				return err
			}
			t.Downsampler = &ds
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeFilter(d *jx.Decoder) (Filter, error) {
	var f Filter
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			f.ID, err = d.Str()
		case "tags":
			err = d.Arr(func(d *jx.Decoder) error {
				t, err := decodeTagFilter(d)
				if err != nil {
					return err
				}
				f.Tags = append(f.Tags, t)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return f, err
}

func decodeTagFilter(d *jx.Decoder) (TagFilter, error) {
	var t TagFilter
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "tagk":
			t.Key, err = d.Str()
		case "filter":
			t.Filter, err = d.Str()
		case "type":
			t.Type, err = d.Str()
		case "groupBy":
			t.GroupBy, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return t, err
}

func decodeMetric(d *jx.Decoder) (Metric, error) {
	var m Metric
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			m.ID, err = d.Str()
		case "metric":
			m.Metric, err = d.Str()
		case "filter":
			m.FilterRef, err = d.Str()
		case "aggregator":
			m.Aggregator, err = d.Str()
		case "downsampler":
			var ds Downsampler
			if err := decodeDownsampler(d, &ds); err != nil {
				return err
			}
			m.Downsampler = &ds
		case "rate":
			m.Rate, err = d.Bool()
		case "rateOptions":
			var opts RateOptions
			if err := decodeRateOptions(d, &opts); err != nil {
				return err
			}
			m.RateOptions = &opts
		default:
			err = d.Skip()
		}
		return err
	})
	return m, err
}

func decodeDownsampler(d *jx.Decoder, ds *Downsampler) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "interval":
			ds.Interval, err = d.Str()
		case "aggregator":
			ds.Aggregator, err = d.Str()
		case "fillPolicy":
			err = decodeFillPolicy(d, ds)
		case "timezone":
			ds.Timezone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// decodeFillPolicy accepts either the short string form ("zero") or the
// object form ({"policy": "scalar", "value": 42}).
func decodeFillPolicy(d *jx.Decoder, ds *Downsampler) error {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return err
		}
		ds.Fill, err = ParseFillPolicy(s)
		return err
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "policy":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			ds.Fill, err = ParseFillPolicy(s)
		case "value":
			ds.FillValue, err = d.Float64()
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeRateOptions(d *jx.Decoder, opts *RateOptions) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "counter":
			opts.Counter, err = d.Bool()
		case "counterMax":
			opts.CounterMax, err = d.Int64()
		case "resetValue":
			opts.ResetValue, err = d.Int64()
		case "dropResets":
			opts.DropResets, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
}
