package connector

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned by Get for unregistered provider names.
var ErrUnknownProvider = errors.New("unknown connector provider")

// Constructor creates a Source from provider settings.
type Constructor func(cfg Config) Source

var registry = map[string]Constructor{}

// Register adds a source constructor under the given provider name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the constructor for the given provider name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return ctor, nil
}

// Providers returns the names of all registered providers, sorted.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
