package interpolate

import "github.com/go-faster/errors"

// Interpolator names understood by the selectors.
const (
	// Default names the non-interpolating implementation: missing
	// values are filled strictly by policy.
	Default = "Default"
	// LERP names the linear interpolation implementation.
	LERP = "LERP"
)

// Factory creates interpolator instances for execution nodes. The concrete
// implementations live with the execution engine; the planner only selects
// and carries them.
type Factory interface {
	// Name returns the registered factory name.
	Name() string
}

// Registry resolves interpolator factories by name.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a Registry holding the given factories.
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{factories: make(map[string]Factory, len(factories))}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// DefaultRegistry returns a Registry with the built-in Default and LERP
// factories.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultFactory{}, lerpFactory{})
}

// Register adds a factory, replacing any factory of the same name.
func (r *Registry) Register(f Factory) {
	r.factories[f.Name()] = f
}

// Get resolves a factory by name.
func (r *Registry) Get(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Errorf("interpolator %q is not registered", name)
	}
	return f, nil
}

type defaultFactory struct{}

func (defaultFactory) Name() string { return Default }

type lerpFactory struct{}

func (lerpFactory) Name() string { return LERP }
