package plan

import (
	"context"
	"time"

	"github.com/go-faster/tsplan/internal/plan/interpolate"
	"github.com/go-faster/tsplan/internal/tsq"
)

// Node is a vertex of the query graph. Nodes are created by factories
// during assembly and never mutated after insertion; execution is up to
// the engine consuming the graph.
type Node interface {
	// ID returns the stable node identifier, unique within a pipeline.
	ID() string
}

// SourceConfig configures a per-metric source node.
type SourceConfig struct {
	// ID is the node identifier, the metric id by convention.
	ID string
	// Sub is the single-metric query the source fetches: the original
	// time range, one metric and its filter.
	Sub *tsq.Query
}

// NodeID returns the node identifier.
func (c SourceConfig) NodeID() string { return c.ID }

// DownsampleConfig configures a downsample node.
type DownsampleConfig struct {
	ID         string
	Aggregator string
	Interval   string
	// Timezone aligns calendar buckets. Nil means UTC-aligned fixed
	// intervals.
	Timezone *time.Location
	// Fill reports whether a fill policy was set on the downsampler.
	Fill          bool
	Interpolation interpolate.Config
}

// NodeID returns the node identifier.
func (c DownsampleConfig) NodeID() string { return c.ID }

// RateConfig configures a rate conversion node.
type RateConfig struct {
	ID      string
	Options tsq.RateOptions
}

// NodeID returns the node identifier.
func (c RateConfig) NodeID() string { return c.ID }

// GroupByConfig configures an aggregation node. With GroupAll set the node
// aggregates across all series; otherwise it partitions by the configured
// tag keys first.
type GroupByConfig struct {
	ID         string
	Aggregator string
	GroupAll   bool
	// TagKeys are the group-by tag names.
	TagKeys []string
	// EncodedKeys are the byte identifiers resolved for TagKeys.
	// Set only for backends with byte-encoded tag keys.
	EncodedKeys   [][]byte
	Interpolation interpolate.Config
}

// NodeID returns the node identifier.
func (c GroupByConfig) NodeID() string { return c.ID }

// DownsampleFactory creates downsample nodes.
type DownsampleFactory interface {
	NewDownsample(ctx context.Context, p *Pipeline, cfg DownsampleConfig) (Node, error)
}

// RateFactory creates rate conversion nodes.
type RateFactory interface {
	NewRate(ctx context.Context, p *Pipeline, cfg RateConfig) (Node, error)
}

// GroupByFactory creates aggregation nodes.
type GroupByFactory interface {
	NewGroupBy(ctx context.Context, p *Pipeline, cfg GroupByConfig) (Node, error)
}

// Factories bundles the node factories the planner builds chains from.
type Factories struct {
	Downsample DownsampleFactory
	Rate       RateFactory
	GroupBy    GroupByFactory
}
