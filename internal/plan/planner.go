// Package plan assembles declarative time series queries into a DAG of
// query processing nodes.
//
// For every metric of a query the planner lays out a linear chain
//
//	Source -> [Downsample] -> [Rate] -> [GroupBy | GroupAll]
//
// and anchors the head of each chain to a shared root vertex owned by the
// pipeline. Execution of the resulting graph is out of scope: nodes are
// produced by injected factories and handed to the engine as-is.
package plan

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-faster/tsplan/internal/plan/interpolate"
	"github.com/go-faster/tsplan/internal/plan/planerrors"
	"github.com/go-faster/tsplan/internal/tsq"
)

// Options sets Planner options.
type Options struct {
	// Interpolators resolves interpolator factories by name. Defaults
	// to the built-in registry.
	Interpolators *interpolate.Registry

	// TracerProvider provides an OpenTelemetry tracer for the planner.
	TracerProvider trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Interpolators == nil {
		o.Interpolators = interpolate.DefaultRegistry()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
}

// Planner assembles query pipelines from typed collaborators: a storage
// backend, node factories and an interpolator registry.
type Planner struct {
	storage       Storage
	factories     Factories
	interpolators *interpolate.Registry

	tracer trace.Tracer
}

// NewPlanner creates a Planner.
func NewPlanner(storage Storage, factories Factories, opts Options) *Planner {
	opts.setDefaults()

	return &Planner{
		storage:       storage,
		factories:     factories,
		interpolators: opts.Interpolators,
		tracer:        opts.TracerProvider.Tracer("tsplan.Planner"),
	}
}

// Build assembles the pipeline for a query.
//
// The returned pipeline is complete: every metric chain is laid out and
// anchored to the root, including chains that suspended on asynchronous
// join key resolution. On error no pipeline is returned; a partially
// built graph never escapes.
func (p *Planner) Build(ctx context.Context, q *tsq.Query, qctx QueryContext, sinks []Sink) (_ *Pipeline, rerr error) {
	ctx, span := p.tracer.Start(ctx, "tsplan.Planner.Build")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
		}
		span.End()
	}()

	if p.storage == nil {
		return nil, &planerrors.ConfigurationError{
			Msg: "no default storage backend configured",
		}
	}
	if len(sinks) == 0 {
		return nil, errors.New("at least one sink is required")
	}
	if err := q.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate query")
	}

	caps := p.storage.Capabilities()
	pipe, err := newPipeline(qctx, sinks)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	var suspended []*keyResolution
	for _, m := range q.Metrics {
		susp, err := p.buildChain(ctx, pipe, caps, q, m)
		if err != nil {
			return nil, err
		}
		if susp != nil {
			suspended = append(suspended, susp)
		}
		lg.Debug("Laid out metric chain",
			zap.String("metric", m.ID),
			zap.Bool("suspended", susp != nil),
		)
	}

	// Resume suspended chains as their key lookups complete. Graph
	// mutation inside the continuations is serialized by the pipeline
	// lock, so resumptions may finish in any order.
	if len(suspended) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, susp := range suspended {
			g.Go(func() error {
				return susp.await(gctx)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return pipe, nil
}

// buildChain lays out the chain of one metric. When the group-by stage
// needs byte-encoded keys the chain suspends before the group-by node and
// a resolution is returned; the continuation finishes the chain once the
// storage lookup completes.
func (p *Planner) buildChain(ctx context.Context, pipe *Pipeline, caps StorageCapabilities, q *tsq.Query, m tsq.Metric) (*keyResolution, error) {
	src, err := p.storage.NewSource(ctx, pipe, SourceConfig{
		ID:  m.ID,
		Sub: q.Sub(m),
	})
	if err != nil {
		return nil, &planerrors.SetupError{
			Msg:    "create source node",
			Metric: m.ID,
			Err:    err,
		}
	}
	if src == nil {
		return nil, &planerrors.SetupError{
			Msg:    "storage backend returned no source node",
			Metric: m.ID,
		}
	}
	if err := pipe.addVertex(src); err != nil {
		return nil, err
	}
	head := src

	ds := m.Downsampler
	if ds == nil {
		ds = q.Time.Downsampler
	}
	if ds != nil {
		head, err = p.addDownsample(ctx, pipe, caps, m, *ds, head)
		if err != nil {
			return nil, err
		}
	}

	if m.Rate {
		head, err = p.addRate(ctx, pipe, m, head)
		if err != nil {
			return nil, err
		}
	}

	agg := m.Aggregator
	if agg == "" {
		agg = q.Time.Aggregator
	}
	joinKeys := p.joinKeys(q, m)
	switch {
	case len(joinKeys) > 0:
		icfg, err := interpolate.ForGroupBy(p.interpolators, q, m, ds, caps.Rollups)
		if err != nil {
			return nil, &planerrors.SetupError{
				Msg:    "select group by interpolation",
				Metric: m.ID,
				Err:    err,
			}
		}
		cfg := GroupByConfig{
			ID:            "groupby_" + m.ID,
			Aggregator:    agg,
			TagKeys:       joinKeys,
			Interpolation: icfg,
		}
		if caps.KeyEncoding == KeyEncodingBytes {
			// Suspend: the node is created by the continuation so
			// that its configuration is final on insertion.
			return &keyResolution{
				metric: m.ID,
				future: p.storage.EncodeJoinKeys(ctx, joinKeys),
				finish: func(keys [][]byte) error {
					cfg.EncodedKeys = keys
					return p.finishGroupBy(ctx, pipe, m, cfg, head)
				},
			}, nil
		}
		return nil, p.finishGroupBy(ctx, pipe, m, cfg, head)
	case !strings.EqualFold(agg, "none"):
		icfg, err := interpolate.ForGroupBy(p.interpolators, q, m, ds, caps.Rollups)
		if err != nil {
			return nil, &planerrors.SetupError{
				Msg:    "select group by interpolation",
				Metric: m.ID,
				Err:    err,
			}
		}
		return nil, p.finishGroupBy(ctx, pipe, m, GroupByConfig{
			ID:            "groupby_" + m.ID,
			Aggregator:    agg,
			GroupAll:      true,
			Interpolation: icfg,
		}, head)
	default:
		// No aggregation stage: the chain terminates as-is.
		return nil, pipe.connectRoot(head)
	}
}

func (p *Planner) addDownsample(ctx context.Context, pipe *Pipeline, caps StorageCapabilities, m tsq.Metric, ds tsq.Downsampler, head Node) (Node, error) {
	icfg, err := interpolate.ForDownsample(p.interpolators, ds, caps.Rollups)
	if err != nil {
		return nil, &planerrors.SetupError{
			Msg:    "select downsample interpolation",
			Metric: m.ID,
			Err:    err,
		}
	}
	cfg := DownsampleConfig{
		ID:            "downsample_" + m.ID,
		Aggregator:    ds.Aggregator,
		Interval:      ds.Interval,
		Fill:          ds.Fill != "",
		Interpolation: icfg,
	}
	if cfg.Timezone, err = ds.Location(); err != nil {
		// Validate catches this earlier; keep the chain safe anyway.
		return nil, errors.Wrapf(err, "metric %q: downsampler timezone", m.ID)
	}
	node, err := p.factories.Downsample.NewDownsample(ctx, pipe, cfg)
	if err != nil {
		return nil, &planerrors.SetupError{
			Msg:    "create downsample node",
			Metric: m.ID,
			Err:    err,
		}
	}
	if err := pipe.addVertex(node); err != nil {
		return nil, err
	}
	if err := pipe.addEdge(head, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) addRate(ctx context.Context, pipe *Pipeline, m tsq.Metric, head Node) (Node, error) {
	opts := tsq.DefaultRateOptions()
	if m.RateOptions != nil {
		opts = *m.RateOptions
	}
	node, err := p.factories.Rate.NewRate(ctx, pipe, RateConfig{
		ID:      "rate_" + m.ID,
		Options: opts,
	})
	if err != nil {
		return nil, &planerrors.SetupError{
			Msg:    "create rate node",
			Metric: m.ID,
			Err:    err,
		}
	}
	if err := pipe.addVertex(node); err != nil {
		return nil, err
	}
	if err := pipe.addEdge(head, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) finishGroupBy(ctx context.Context, pipe *Pipeline, m tsq.Metric, cfg GroupByConfig, head Node) error {
	node, err := p.factories.GroupBy.NewGroupBy(ctx, pipe, cfg)
	if err != nil {
		return &planerrors.SetupError{
			Msg:    "create group by node",
			Metric: m.ID,
			Err:    err,
		}
	}
	if err := pipe.addVertex(node); err != nil {
		return err
	}
	if err := pipe.addEdge(head, node); err != nil {
		return err
	}
	return pipe.connectRoot(node)
}

func (p *Planner) joinKeys(q *tsq.Query, m tsq.Metric) []string {
	if m.FilterRef == "" {
		return nil
	}
	f, ok := q.Filter(m.FilterRef)
	if !ok {
		return nil
	}
	return f.GroupByKeys()
}

// keyResolution is a suspended chain tail waiting on asynchronous join key
// encoding.
type keyResolution struct {
	metric string
	future KeyFuture
	finish func(keys [][]byte) error
}

func (r *keyResolution) await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &planerrors.SetupError{
			Msg:    "join key resolution interrupted",
			Metric: r.metric,
			Err:    ctx.Err(),
		}
	case <-r.future.Done():
	}
	keys, err := r.future.Keys()
	if err != nil {
		return &planerrors.SetupError{
			Msg:    "encode join keys",
			Metric: r.metric,
			Err:    err,
		}
	}
	return r.finish(keys)
}
