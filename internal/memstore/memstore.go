// Package memstore provides an in-memory storage backend implementing the
// planner storage contract. It backs the CLI and tests; it is not a
// storage engine.
package memstore

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/go-faster/errors"

	"github.com/go-faster/tsplan/internal/plan"
)

// Options configure a Store.
type Options struct {
	// ByteKeys makes the store report byte-encoded tag keys, forcing
	// asynchronous join key resolution.
	ByteKeys bool
	// Rollups is the rollup metadata the store reports. Nil means no
	// rollup summaries.
	Rollups *RollupConfig
}

// Store is an in-memory storage backend.
type Store struct {
	byteKeys bool
	rollups  *RollupConfig
}

var _ plan.Storage = (*Store)(nil)

// New creates a Store.
func New(opts Options) *Store {
	return &Store{
		byteKeys: opts.ByteKeys,
		rollups:  opts.Rollups,
	}
}

// Capabilities implements [plan.Storage].
func (s *Store) Capabilities() plan.StorageCapabilities {
	caps := plan.StorageCapabilities{
		KeyEncoding: plan.KeyEncodingPlain,
	}
	if s.byteKeys {
		caps.KeyEncoding = plan.KeyEncodingBytes
	}
	if s.rollups != nil {
		caps.Rollups = s.rollups
	}
	return caps
}

// NewSource implements [plan.Storage].
func (s *Store) NewSource(_ context.Context, _ *plan.Pipeline, cfg plan.SourceConfig) (plan.Node, error) {
	return &SourceNode{cfg: cfg}, nil
}

// EncodeJoinKeys implements [plan.Storage]. Keys resolve off the calling
// goroutine to honor the asynchronous contract.
func (s *Store) EncodeJoinKeys(_ context.Context, keys []string) plan.KeyFuture {
	promise := plan.NewKeyPromise()
	go func() {
		encoded := make([][]byte, len(keys))
		for i, k := range keys {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, xxhash.Sum64String(k))
			encoded[i] = b
		}
		promise.Resolve(encoded)
	}()
	return promise
}

// SourceNode is an inert source vertex carrying its configuration.
type SourceNode struct {
	cfg plan.SourceConfig
}

// ID implements [plan.Node].
func (n *SourceNode) ID() string { return n.cfg.ID }

// Config returns the source configuration.
func (n *SourceNode) Config() plan.SourceConfig { return n.cfg }

// RollupConfig maps aggregator names to stored summary identifiers.
type RollupConfig struct {
	ids map[string]int
}

// NewRollupConfig creates a RollupConfig assigning identifiers to the
// given aggregators in order.
func NewRollupConfig(aggregators ...string) *RollupConfig {
	ids := make(map[string]int, len(aggregators))
	for i, agg := range aggregators {
		ids[agg] = i
	}
	return &RollupConfig{ids: ids}
}

// DefaultRollups returns the usual summary set.
func DefaultRollups() *RollupConfig {
	return NewRollupConfig("sum", "count", "min", "max", "avg")
}

// SummaryID implements [interpolate.RollupSource].
func (c *RollupConfig) SummaryID(aggregator string) (int, error) {
	id, ok := c.ids[aggregator]
	if !ok {
		return 0, errors.Errorf("no summary stored for aggregator %q", aggregator)
	}
	return id, nil
}
