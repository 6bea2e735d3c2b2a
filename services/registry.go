package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"price-tracker/models"
	"price-tracker/scraper"
	"price-tracker/scraper/gigantti"
	"price-tracker/scraper/power"
	"price-tracker/scraper/verkkokauppa"
	"price-tracker/utils"
)

// ErrUnknownAdapter is returned when a store's scraper class has no adapter.
var ErrUnknownAdapter = errors.New("unknown scraper class")

// AdapterFactory builds an adapter for one store run.
type AdapterFactory func(store *models.Store, opts scraper.Options, logger *utils.Logger) scraper.Adapter

// Registry maps a store's scraper_class tag to its adapter factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]AdapterFactory)}
}

// DefaultRegistry knows the three built-in stores and their legacy aliases.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	giganttiFactory := func(s *models.Store, o scraper.Options, l *utils.Logger) scraper.Adapter {
		return gigantti.New(s, o, l)
	}
	powerFactory := func(s *models.Store, o scraper.Options, l *utils.Logger) scraper.Adapter {
		return power.New(s, o, l)
	}

	r.MustRegister("VerkkokauppaScraper", func(s *models.Store, o scraper.Options, l *utils.Logger) scraper.Adapter {
		return verkkokauppa.New(s, o, l)
	})
	r.MustRegister("GiganttiScraper", giganttiFactory)
	r.MustRegister("GiganttiAPIScraper", giganttiFactory)
	r.MustRegister("PowerScraper", powerFactory)
	r.MustRegister("PowerAPIScraper", powerFactory)
	return r
}

// Register adds factory under name. Names must be non-empty and unique.
func (r *Registry) Register(name string, factory AdapterFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if factory == nil {
		return fmt.Errorf("adapter factory is nil for name %q", name)
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("adapter name is empty")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("adapter %q is already registered", name)
	}

	r.factories[name] = factory
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(name string, factory AdapterFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered for name.
func (r *Registry) Lookup(name string) (AdapterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, name)
	}
	return f, nil
}

// Names lists the registered scraper classes in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
