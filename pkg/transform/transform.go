// Package transform provides the named row→event mapping strategies and the
// registry that selects the active one by configuration. Each strategy
// declares its required attachments statically, so a missing attachment is a
// configuration error raised at construction rather than an ad hoc failure
// halfway through a batch.
package transform

import (
	"sync"

	"go.uber.org/zap"

	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/models"
)

// Strategy maps one raw source row to one capture event.
type Strategy interface {
	// Name is the registry key the strategy was registered under.
	Name() string
	// Transform converts a row. A returned error is fatal to the batch:
	// transform correctness is a configuration precondition, not a
	// transient fault.
	Transform(row *models.RawRow) (*models.Event, error)
}

// Factory builds a strategy from its attachments. Factories must validate
// required attachments and fail fast.
type Factory func(attachments map[string][]byte) (Strategy, error)

type registration struct {
	factory  Factory
	required []string
}

// Registry holds named strategy factories.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]registration
	log        *zap.Logger
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]registration),
		log:        logger.With(zap.String("component", "transform_registry")),
	}
}

var globalRegistry = NewRegistry()

// Register adds a strategy factory under name, declaring the attachments the
// strategy requires.
func (r *Registry) Register(name string, required []string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "transform %q already registered", name)
	}

	r.strategies[name] = registration{factory: factory, required: required}
	r.log.Debug("transform registered", zap.String("name", name))
	return nil
}

// Create instantiates the named strategy, verifying every declared attachment
// is present before the factory runs.
func (r *Registry) Create(name string, attachments map[string][]byte) (Strategy, error) {
	r.mu.RLock()
	reg, exists := r.strategies[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "transform %q not found", name)
	}

	for _, att := range reg.required {
		if _, ok := attachments[att]; !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"transform %q requires attachment %q", name, att)
		}
	}

	strategy, err := reg.factory(attachments)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create transform "+name)
	}

	return strategy, nil
}

// List returns the registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// Register adds a strategy to the global registry.
func Register(name string, required []string, factory Factory) error {
	return globalRegistry.Register(name, required, factory)
}

// Create instantiates a strategy from the global registry.
func Create(name string, attachments map[string][]byte) (Strategy, error) {
	return globalRegistry.Create(name, attachments)
}

// List returns strategy names from the global registry.
func List() []string {
	return globalRegistry.List()
}
