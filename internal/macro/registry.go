package macro

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// GraphFactory builds a fresh Graph for a run from the start parameters.
// Factories validate what they need and return an error for unusable
// parameters; the engine then applies Graph.ValidateParams as well.
type GraphFactory func(params map[string]any) (Graph, error)

// Registry maps macro names to graph factories and tracks the currently
// active run per macro. Operator control (start, pause, resume, cancel,
// modify) dispatches through it.
//
// One run per macro name at a time: Start refuses a double-start.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	engine *Engine
	logger Logger

	mu        sync.Mutex
	factories map[string]GraphFactory
	active    map[string]*Run
}

// NewRegistry creates a registry bound to an engine.
func NewRegistry(engine *Engine, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		engine:    engine,
		logger:    logger,
		factories: make(map[string]GraphFactory),
		active:    make(map[string]*Run),
	}
}

// Register adds a macro factory under a name.
//
// Returns:
//   - error: ErrMacroExists if the name is taken
func (r *Registry) Register(name string, factory GraphFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: empty name or nil factory", ErrInvalidGraph)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrMacroExists, name)
	}
	r.factories[name] = factory
	return nil
}

// Names returns the registered macro names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start builds the graph for a macro and launches a run.
//
// Returns:
//   - *Run: The executing run
//   - error: ErrMacroNotFound, ErrMacroRunning, or a graph/params error
func (r *Registry) Start(ctx context.Context, name string, params map[string]any) (*Run, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMacroNotFound, name)
	}
	if existing, running := r.active[name]; running && !existing.Status().Terminal() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (run %d)", ErrMacroRunning, name, existing.ID())
	}
	r.mu.Unlock()

	graph, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidParams, name, err)
	}

	r.mu.Lock()
	// Re-check under lock: a concurrent Start may have won the race while
	// the factory was building.
	if existing, running := r.active[name]; running && !existing.Status().Terminal() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (run %d)", ErrMacroRunning, name, existing.ID())
	}
	run, err := r.engine.Start(ctx, graph, params)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.active[name] = run
	r.mu.Unlock()

	// Clear the active slot once the run ends.
	go func() {
		<-run.Done()
		r.mu.Lock()
		if r.active[name] == run {
			delete(r.active, name)
		}
		r.mu.Unlock()
	}()

	return run, nil
}

// Active returns the currently active run for a macro, if any.
func (r *Registry) Active(name string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.active[name]
	return run, ok
}

// ActiveRuns returns the active runs keyed by macro name.
func (r *Registry) ActiveRuns() map[string]*Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Run, len(r.active))
	for name, run := range r.active {
		out[name] = run
	}
	return out
}

// Pause pauses the active run of a macro.
func (r *Registry) Pause(name string) error {
	run, err := r.lookup(name)
	if err != nil {
		return err
	}
	return run.Pause()
}

// Resume resumes the active run of a macro.
func (r *Registry) Resume(name string) error {
	run, err := r.lookup(name)
	if err != nil {
		return err
	}
	return run.Resume()
}

// Cancel cancels the active run of a macro.
func (r *Registry) Cancel(name string, mode CancelMode) error {
	run, err := r.lookup(name)
	if err != nil {
		return err
	}
	return run.Cancel(mode)
}

// Modify applies a parameter delta to the active run of a macro.
func (r *Registry) Modify(name string, delta map[string]any) error {
	run, err := r.lookup(name)
	if err != nil {
		return err
	}
	return run.Modify(delta)
}

func (r *Registry) lookup(name string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMacroNotFound, name)
	}
	run, ok := r.active[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	return run, nil
}
