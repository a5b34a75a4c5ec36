package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moepig/jmx-conf-gen/mbean"
)

// Processor decorates a freshly built tree before it is published.
type Processor interface {
	Process(ctx context.Context, tree *mbean.Tree) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, tree *mbean.Tree) error

func (f ProcessorFunc) Process(ctx context.Context, tree *mbean.Tree) error {
	return f(ctx, tree)
}

// ProcessorRegistry holds named tree processors, run in name order.
type ProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewProcessorRegistry returns an empty registry.
func NewProcessorRegistry() *ProcessorRegistry {
	return &ProcessorRegistry{processors: make(map[string]Processor)}
}

// Add registers a processor, replacing any processor of the same name.
func (r *ProcessorRegistry) Add(name string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = p
}

// Processors returns the registered processor names in run order.
func (r *ProcessorRegistry) Processors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every processor.
func (r *ProcessorRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors = make(map[string]Processor)
}

// Process runs every processor on tree and stops at the first failure.
func (r *ProcessorRegistry) Process(ctx context.Context, tree *mbean.Tree) error {
	for _, name := range r.Processors() {
		r.mu.RLock()
		p := r.processors[name]
		r.mu.RUnlock()
		if p == nil {
			continue
		}
		if err := p.Process(ctx, tree); err != nil {
			return fmt.Errorf("tree processor %s failed: %w", name, err)
		}
	}
	return nil
}
