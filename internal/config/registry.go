package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/MrWong99/hermesmic/pkg/provider/vad"
)

// KnownVADNames lists the classifiers registered by cmd/hermesmic.
// Used by [Validate] to warn about unrecognised names.
var KnownVADNames = []string{"webrtc", "energy"}

func isKnownVAD(name string) bool { return slices.Contains(KnownVADNames, name) }

// ErrVADNotRegistered is returned by [Registry.CreateVAD] when no factory has
// been registered under the requested name.
var ErrVADNotRegistered = errors.New("config: vad engine not registered")

// VADFactory builds a VAD engine from the summary settings.
type VADFactory func(SummaryConfig) (vad.Engine, error)

// Registry maps VAD engine names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	vad map[string]VADFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{vad: make(map[string]VADFactory)}
}

// RegisterVAD registers a VAD engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateVAD instantiates the engine registered under cfg.VAD.
func (r *Registry) CreateVAD(cfg SummaryConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.VAD]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVADNotRegistered, cfg.VAD)
	}
	eng, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create vad %q: %w", cfg.VAD, err)
	}
	return eng, nil
}

// VADNames returns the registered names in sorted order.
func (r *Registry) VADNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.vad))
	for n := range r.vad {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
