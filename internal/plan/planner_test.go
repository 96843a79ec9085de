package plan

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-faster/tsplan/internal/plan/interpolate"
	"github.com/go-faster/tsplan/internal/plan/planerrors"
	"github.com/go-faster/tsplan/internal/tsq"
)

type testNode struct {
	id string
}

func (n testNode) ID() string { return n.id }

type fakeSink struct {
	id string
}

func (s fakeSink) ID() string { return s.id }

// fakeStorage implements Storage for planner tests.
type fakeStorage struct {
	caps         StorageCapabilities
	sourceErr    error
	nilSource    bool
	encode       func(ctx context.Context, keys []string) KeyFuture
	onSource     func(cfg SourceConfig)

	mux     sync.Mutex
	sources []SourceConfig
	encoded [][]string
}

func (s *fakeStorage) Capabilities() StorageCapabilities { return s.caps }

func (s *fakeStorage) NewSource(_ context.Context, _ *Pipeline, cfg SourceConfig) (Node, error) {
	if s.sourceErr != nil {
		return nil, s.sourceErr
	}
	if s.nilSource {
		return nil, nil
	}
	s.mux.Lock()
	s.sources = append(s.sources, cfg)
	s.mux.Unlock()
	if s.onSource != nil {
		s.onSource(cfg)
	}
	return testNode{id: cfg.ID}, nil
}

func (s *fakeStorage) EncodeJoinKeys(ctx context.Context, keys []string) KeyFuture {
	s.mux.Lock()
	s.encoded = append(s.encoded, keys)
	s.mux.Unlock()
	if s.encode != nil {
		return s.encode(ctx, keys)
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return ResolvedKeys(out, nil)
}

// captureFactories records every node configuration it sees.
type captureFactories struct {
	downsampleErr error
	rateErr       error
	groupByErr    error

	mux         sync.Mutex
	downsamples []DownsampleConfig
	rates       []RateConfig
	groupBys    []GroupByConfig
}

func (f *captureFactories) NewDownsample(_ context.Context, _ *Pipeline, cfg DownsampleConfig) (Node, error) {
	if f.downsampleErr != nil {
		return nil, f.downsampleErr
	}
	f.mux.Lock()
	f.downsamples = append(f.downsamples, cfg)
	f.mux.Unlock()
	return testNode{id: cfg.ID}, nil
}

func (f *captureFactories) NewRate(_ context.Context, _ *Pipeline, cfg RateConfig) (Node, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	f.mux.Lock()
	f.rates = append(f.rates, cfg)
	f.mux.Unlock()
	return testNode{id: cfg.ID}, nil
}

func (f *captureFactories) NewGroupBy(_ context.Context, _ *Pipeline, cfg GroupByConfig) (Node, error) {
	if f.groupByErr != nil {
		return nil, f.groupByErr
	}
	f.mux.Lock()
	f.groupBys = append(f.groupBys, cfg)
	f.mux.Unlock()
	return testNode{id: cfg.ID}, nil
}

func (f *captureFactories) factories() Factories {
	return Factories{Downsample: f, Rate: f, GroupBy: f}
}

type rollupMap map[string]int

func (m rollupMap) SummaryID(aggregator string) (int, error) {
	id, ok := m[aggregator]
	if !ok {
		return 0, errors.Errorf("no summary for %q", aggregator)
	}
	return id, nil
}

func testRollups() rollupMap {
	return rollupMap{"sum": 0, "count": 1, "min": 2, "max": 3, "avg": 4}
}

func testSinks() []Sink {
	return []Sink{fakeSink{id: "sink"}}
}

func groupByQuery(aggregator string) *tsq.Query {
	return &tsq.Query{
		Time: tsq.TimeRange{Start: "1h-ago", Aggregator: aggregator},
		Filters: []tsq.Filter{
			{ID: "f1", Tags: []tsq.TagFilter{
				{Key: "host", Filter: "*", Type: "wildcard", GroupBy: true},
			}},
		},
		Metrics: []tsq.Metric{
			{ID: "m1", Metric: "sys.cpu.user", FilterRef: "f1"},
		},
	}
}

// requireChain asserts that ids form a linear producer chain terminating
// at the pipeline root.
func requireChain(t *testing.T, pipe *Pipeline, ids ...string) {
	t.Helper()
	g := pipe.Graph()
	for i, id := range ids {
		_, ok := g.Node(id)
		require.True(t, ok, "node %q", id)
		next := "root"
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		require.Equal(t, []string{next}, g.Consumers(id), "consumers of %q", id)
	}
}

func TestBuildGroupByChain(t *testing.T) {
	// One metric, aggregator sum, no downsampler, one group-by tag,
	// no rollups.
	storage := &fakeStorage{}
	facts := &captureFactories{}
	p := NewPlanner(storage, facts.factories(), Options{})

	pipe, err := p.Build(context.Background(), groupByQuery("sum"), QueryContext{}, testSinks())
	require.NoError(t, err)

	requireChain(t, pipe, "m1", "groupby_m1")
	require.Equal(t, 3, pipe.Graph().Len())
	require.Equal(t, "root", pipe.Root().ID())
	require.Equal(t, testSinks(), pipe.Sinks())
	require.Equal(t, ModeSingle, pipe.Context().Mode)
	require.Empty(t, facts.downsamples)
	require.Empty(t, facts.rates)

	require.Len(t, facts.groupBys, 1)
	gb := facts.groupBys[0]
	require.Equal(t, "sum", gb.Aggregator)
	require.False(t, gb.GroupAll)
	require.Equal(t, []string{"host"}, gb.TagKeys)
	require.Empty(t, gb.EncodedKeys)
	require.Equal(t, interpolate.LERP, gb.Interpolation.Numeric.Interpolator.Name())
	require.Nil(t, gb.Interpolation.Summary)

	// The source saw only its own metric and filter.
	require.Len(t, storage.sources, 1)
	sub := storage.sources[0].Sub
	require.Len(t, sub.Metrics, 1)
	require.Len(t, sub.Filters, 1)
}

func TestBuildAvgRollupGroupBy(t *testing.T) {
	storage := &fakeStorage{caps: StorageCapabilities{Rollups: testRollups()}}
	facts := &captureFactories{}
	p := NewPlanner(storage, facts.factories(), Options{})

	_, err := p.Build(context.Background(), groupByQuery("avg"), QueryContext{}, testSinks())
	require.NoError(t, err)

	require.Len(t, facts.groupBys, 1)
	summary := facts.groupBys[0].Interpolation.Summary
	require.NotNil(t, summary)
	require.Equal(t, []int{0, 1}, summary.Expected)
	require.True(t, summary.Sync)
	require.Equal(t, "sum", summary.Component)
}

func TestBuildDownsampleOnlyChain(t *testing.T) {
	// Downsampler resolved, aggregator none: no aggregation node, the
	// downsample connects straight to the root.
	q := &tsq.Query{
		Time: tsq.TimeRange{Start: "1h-ago", Aggregator: "none"},
		Metrics: []tsq.Metric{
			{
				ID:     "m1",
				Metric: "sys.cpu.user",
				Downsampler: &tsq.Downsampler{
					Interval:   "1h",
					Aggregator: "zimsum",
				},
			},
		},
	}
	storage := &fakeStorage{}
	facts := &captureFactories{}
	p := NewPlanner(storage, facts.factories(), Options{})

	pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
	require.NoError(t, err)

	requireChain(t, pipe, "m1", "downsample_m1")
	require.Empty(t, facts.groupBys)

	require.Len(t, facts.downsamples, 1)
	ds := facts.downsamples[0]
	require.Equal(t, "zimsum", ds.Aggregator)
	require.Equal(t, "1h", ds.Interval)
	require.False(t, ds.Fill)
	require.Nil(t, ds.Timezone)
	require.Equal(t, interpolate.Default, ds.Interpolation.Numeric.Interpolator.Name())
}

func TestBuildFullChain(t *testing.T) {
	q := groupByQuery("sum")
	q.Time.Downsampler = &tsq.Downsampler{
		Interval:   "1m",
		Aggregator: "avg",
		Fill:       tsq.FillNaN,
		Timezone:   "America/Denver",
	}
	q.Metrics[0].Rate = true

	storage := &fakeStorage{}
	facts := &captureFactories{}
	p := NewPlanner(storage, facts.factories(), Options{})

	pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
	require.NoError(t, err)

	requireChain(t, pipe, "m1", "downsample_m1", "rate_m1", "groupby_m1")

	require.Len(t, facts.downsamples, 1)
	ds := facts.downsamples[0]
	require.True(t, ds.Fill)
	require.NotNil(t, ds.Timezone)
	require.Equal(t, "America/Denver", ds.Timezone.String())

	// Rate flag without options falls back to defaults.
	require.Len(t, facts.rates, 1)
	require.Equal(t, int64(math.MaxInt64), facts.rates[0].Options.CounterMax)

	// Group by fill follows the downsampler.
	require.Len(t, facts.groupBys, 1)
	require.Equal(t, tsq.FillNaN, facts.groupBys[0].Interpolation.Numeric.Fill)
}

func TestBuildRateOptions(t *testing.T) {
	q := &tsq.Query{
		Time: tsq.TimeRange{Start: "1h-ago", Aggregator: "none"},
		Metrics: []tsq.Metric{
			{
				ID:     "m1",
				Metric: "sys.if.in",
				Rate:   true,
				RateOptions: &tsq.RateOptions{
					Counter:    true,
					CounterMax: 65535,
				},
			},
		},
	}
	storage := &fakeStorage{}
	facts := &captureFactories{}
	p := NewPlanner(storage, facts.factories(), Options{})

	pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
	require.NoError(t, err)

	requireChain(t, pipe, "m1", "rate_m1")
	require.Len(t, facts.rates, 1)
	require.True(t, facts.rates[0].Options.Counter)
	require.Equal(t, int64(65535), facts.rates[0].Options.CounterMax)
}

func TestBuildGroupAll(t *testing.T) {
	t.Run("NoFilter", func(t *testing.T) {
		q := &tsq.Query{
			Time: tsq.TimeRange{Start: "1h-ago", Aggregator: "sum"},
			Metrics: []tsq.Metric{
				{ID: "m1", Metric: "sys.cpu.user"},
			},
		}
		storage := &fakeStorage{}
		facts := &captureFactories{}
		p := NewPlanner(storage, facts.factories(), Options{})

		pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
		require.NoError(t, err)

		requireChain(t, pipe, "m1", "groupby_m1")
		require.Len(t, facts.groupBys, 1)
		require.True(t, facts.groupBys[0].GroupAll)
		require.Empty(t, facts.groupBys[0].TagKeys)
	})
	t.Run("FilterWithoutGroupBy", func(t *testing.T) {
		// A filter with no group-by tags still aggregates across all
		// series.
		q := groupByQuery("sum")
		q.Filters[0].Tags[0].GroupBy = false

		storage := &fakeStorage{}
		facts := &captureFactories{}
		p := NewPlanner(storage, facts.factories(), Options{})

		pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
		require.NoError(t, err)

		requireChain(t, pipe, "m1", "groupby_m1")
		require.Len(t, facts.groupBys, 1)
		require.True(t, facts.groupBys[0].GroupAll)
	})
	t.Run("AggregatorNone", func(t *testing.T) {
		q := &tsq.Query{
			Time: tsq.TimeRange{Start: "1h-ago", Aggregator: "NONE"},
			Metrics: []tsq.Metric{
				{ID: "m1", Metric: "sys.cpu.user"},
			},
		}
		storage := &fakeStorage{}
		facts := &captureFactories{}
		p := NewPlanner(storage, facts.factories(), Options{})

		pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
		require.NoError(t, err)

		requireChain(t, pipe, "m1")
		require.Empty(t, facts.groupBys)
	})
}

func TestBuildManyMetrics(t *testing.T) {
	q := &tsq.Query{
		Time: tsq.TimeRange{Start: "1h-ago", Aggregator: "sum"},
		Metrics: []tsq.Metric{
			{ID: "m1", Metric: "sys.cpu.user"},
			{ID: "m2", Metric: "sys.cpu.sys", Aggregator: "none"},
			{ID: "m3", Metric: "sys.cpu.idle", Rate: true},
		},
	}
	storage := &fakeStorage{}
	facts := &captureFactories{}
	p := NewPlanner(storage, facts.factories(), Options{})

	pipe, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
	require.NoError(t, err)

	// Exactly one chain per metric terminates at the root.
	heads := pipe.Graph().Producers("root")
	require.ElementsMatch(t, []string{"groupby_m1", "m2", "groupby_m3"}, heads)
	requireChain(t, pipe, "m1", "groupby_m1")
	requireChain(t, pipe, "m2")
	requireChain(t, pipe, "m3", "rate_m3", "groupby_m3")
}

func TestBuildErrors(t *testing.T) {
	valid := groupByQuery("sum")

	t.Run("NoStorage", func(t *testing.T) {
		facts := &captureFactories{}
		p := NewPlanner(nil, facts.factories(), Options{})
		_, err := p.Build(context.Background(), valid, QueryContext{}, testSinks())
		require.True(t, planerrors.IsConfiguration(err), "got %v", err)
	})
	t.Run("NoSinks", func(t *testing.T) {
		facts := &captureFactories{}
		p := NewPlanner(&fakeStorage{}, facts.factories(), Options{})
		_, err := p.Build(context.Background(), valid, QueryContext{}, nil)
		require.Error(t, err)
	})
	t.Run("InvalidQuery", func(t *testing.T) {
		q := groupByQuery("sum")
		q.Metrics[0].FilterRef = "nope"
		facts := &captureFactories{}
		p := NewPlanner(&fakeStorage{}, facts.factories(), Options{})
		_, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
		require.Error(t, err)
		require.False(t, planerrors.IsSetup(err))
	})
	t.Run("SourceError", func(t *testing.T) {
		storage := &fakeStorage{sourceErr: errors.New("boom")}
		facts := &captureFactories{}
		p := NewPlanner(storage, facts.factories(), Options{})
		_, err := p.Build(context.Background(), valid, QueryContext{}, testSinks())
		require.True(t, planerrors.IsSetup(err), "got %v", err)
	})
	t.Run("NilSource", func(t *testing.T) {
		storage := &fakeStorage{nilSource: true}
		facts := &captureFactories{}
		p := NewPlanner(storage, facts.factories(), Options{})
		_, err := p.Build(context.Background(), valid, QueryContext{}, testSinks())
		require.True(t, planerrors.IsSetup(err), "got %v", err)
	})
	t.Run("GroupByFactoryError", func(t *testing.T) {
		facts := &captureFactories{groupByErr: errors.New("boom")}
		p := NewPlanner(&fakeStorage{}, facts.factories(), Options{})
		_, err := p.Build(context.Background(), valid, QueryContext{}, testSinks())
		require.True(t, planerrors.IsSetup(err), "got %v", err)
	})
	t.Run("DownsampleFactoryError", func(t *testing.T) {
		q := groupByQuery("sum")
		q.Time.Downsampler = &tsq.Downsampler{Interval: "1m", Aggregator: "avg"}
		facts := &captureFactories{downsampleErr: errors.New("boom")}
		p := NewPlanner(&fakeStorage{}, facts.factories(), Options{})
		_, err := p.Build(context.Background(), q, QueryContext{}, testSinks())
		require.True(t, planerrors.IsSetup(err), "got %v", err)
	})
	t.Run("MissingInterpolator", func(t *testing.T) {
		facts := &captureFactories{}
		p := NewPlanner(&fakeStorage{}, facts.factories(), Options{
			Interpolators: interpolate.NewRegistry(),
		})
		_, err := p.Build(context.Background(), valid, QueryContext{}, testSinks())
		require.True(t, planerrors.IsSetup(err), "got %v", err)
	})
}
