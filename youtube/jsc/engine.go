package jsc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ytget/ytjsc/errs"
)

// Engine is one isolated script interpreter. Implementations are not safe for
// concurrent use; Runtime serializes access. Interrupt is the exception and
// may be called from any goroutine.
type Engine interface {
	// Name identifies the implementation ("goja", "otto").
	Name() string
	// Run evaluates src under the given script name and returns the string
	// form of its completion value ("" for undefined or null).
	Run(name, src string) (string, error)
	// SetString binds a string to a global variable.
	SetString(name, value string) error
	// Interrupt aborts the evaluation in flight, if any.
	Interrupt(reason string)
	// Close releases the interpreter.
	Close() error
}

// EngineFactory creates a fresh engine.
type EngineFactory func() (Engine, error)

var (
	enginesMu     sync.RWMutex
	engines       = make(map[string]EngineFactory)
	defaultEngine string
)

// registerEngine is called from the init functions of the build-tagged engine
// files. The first registration with isDefault set becomes the default.
func registerEngine(name string, factory EngineFactory, isDefault bool) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = factory
	if isDefault && defaultEngine == "" {
		defaultEngine = name
	}
}

// Engines lists the engines compiled into this binary.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultEngine returns the engine used when none is named, or "".
func DefaultEngine() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	if defaultEngine != "" {
		return defaultEngine
	}
	for name := range engines {
		return name
	}
	return ""
}

// LocalAvailable reports whether local solving is possible in this build.
// Builds with the nojsc tag have no engine and must use a remote solver.
func LocalAvailable() bool {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return len(engines) > 0
}

// NewEngine creates an engine by name; "" selects the default.
func NewEngine(name string) (Engine, error) {
	if name == "" {
		name = DefaultEngine()
	}
	enginesMu.RLock()
	factory, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, NewError(ErrCodeEngineUnavailable,
			fmt.Sprintf("engine %q is not compiled in", name), errs.ErrEngineUnavailable,
			map[string]any{"available": Engines()})
	}
	eng, err := factory()
	if err != nil {
		return nil, NewError(ErrCodeEngineUnavailable,
			fmt.Sprintf("create %s engine", name), fmt.Errorf("%w: %v", errs.ErrEngineUnavailable, err))
	}
	return eng, nil
}
