package sink

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a Sink from its configuration.
type Constructor func(cfg Config) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a sink constructor under the given name.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// Get returns the sink constructor registered under name.
func Get(name string) (Constructor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown sink: %s", name)
	}
	return ctor, nil
}

// Names returns the registered sink names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs every configured sink. On failure the sinks built so far
// are closed.
func Build(cfgs []Config) ([]Sink, error) {
	var built []Sink
	for _, cfg := range cfgs {
		ctor, err := Get(cfg.Name)
		if err == nil {
			var s Sink
			s, err = ctor(cfg)
			if err == nil {
				built = append(built, s)
				continue
			}
		}
		for _, s := range built {
			s.Close()
		}
		return nil, fmt.Errorf("sink %q: %w", cfg.Name, err)
	}
	return built, nil
}
