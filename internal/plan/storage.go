package plan

import (
	"context"
	"sync"

	"github.com/go-faster/tsplan/internal/plan/interpolate"
)

// KeyEncoding is the tag key representation of a storage backend.
type KeyEncoding string

const (
	// KeyEncodingPlain stores tag keys as their names.
	KeyEncodingPlain KeyEncoding = "plain"
	// KeyEncodingBytes stores tag keys as encoded byte identifiers that
	// must be resolved before grouping.
	KeyEncodingBytes KeyEncoding = "bytes"
)

// StorageCapabilities describes what a storage backend can do.
type StorageCapabilities struct {
	// KeyEncoding is the tag key representation.
	KeyEncoding KeyEncoding
	// Rollups is the backend rollup metadata. Nil when the backend
	// stores no pre-aggregated summaries.
	Rollups interpolate.RollupSource
}

// Storage is the data store collaborator the planner builds sources from.
type Storage interface {
	// Capabilities returns backend capabilities.
	//
	// NOTE: the planner calls this once per build and then keeps the
	// value. Capabilities should not change over time.
	Capabilities() StorageCapabilities
	// NewSource creates the source node for a single-metric sub-query.
	NewSource(ctx context.Context, p *Pipeline, cfg SourceConfig) (Node, error)
	// EncodeJoinKeys resolves tag names to the byte identifiers the
	// backend stores them under. Resolution is asynchronous: the caller
	// must not assume the future is complete on return.
	EncodeJoinKeys(ctx context.Context, keys []string) KeyFuture
}

// KeyFuture is an asynchronous join key resolution.
type KeyFuture interface {
	// Done is closed when the resolution completes.
	Done() <-chan struct{}
	// Keys returns the resolved keys. Valid only after Done is closed.
	Keys() ([][]byte, error)
}

// KeyPromise is a completable [KeyFuture].
type KeyPromise struct {
	once sync.Once
	done chan struct{}
	keys [][]byte
	err  error
}

// NewKeyPromise creates an unresolved promise.
func NewKeyPromise() *KeyPromise {
	return &KeyPromise{done: make(chan struct{})}
}

// Resolve completes the promise with keys. Subsequent calls to Resolve or
// Reject are no-ops.
func (p *KeyPromise) Resolve(keys [][]byte) {
	p.once.Do(func() {
		p.keys = keys
		close(p.done)
	})
}

// Reject completes the promise with an error. Subsequent calls to Resolve
// or Reject are no-ops.
func (p *KeyPromise) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done implements [KeyFuture].
func (p *KeyPromise) Done() <-chan struct{} {
	return p.done
}

// Keys implements [KeyFuture].
func (p *KeyPromise) Keys() ([][]byte, error) {
	return p.keys, p.err
}

// ResolvedKeys returns an already-completed future.
func ResolvedKeys(keys [][]byte, err error) KeyFuture {
	p := NewKeyPromise()
	if err != nil {
		p.Reject(err)
	} else {
		p.Resolve(keys)
	}
	return p
}
