// Package assets loads the script stack evaluated into every sandbox: a
// parser library, the matching source regenerator and the analysis helper.
//
// The payloads are build-time artifacts. A Bundle reads them from any fs.FS,
// trying the plain name first and then a brotli-compressed "<name>.br".
// Loaded text is memoized and shared read-only between runtimes.
package assets

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
)

// Default resource names.
const (
	DefaultParser      = "meriyah.js"
	DefaultRegenerator = "astring.js"
	DefaultSolver      = "yt.solver.core.js"
)

const brotliSuffix = ".br"

// Role names a slot in the stack.
type Role string

const (
	RoleParser      Role = "parser"
	RoleRegenerator Role = "regenerator"
	RoleSolver      Role = "solver"
)

// Script is one loaded resource.
type Script struct {
	Role   Role
	Name   string
	Source string
}

// MissingError reports a resource that could not be read.
type MissingError struct {
	Role Role
	Name string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s resource %q: %v", e.Role, e.Name, e.Err)
}

// Unwrap makes errors.Is(err, errs.ErrResourceMissing) true.
func (e *MissingError) Unwrap() []error { return []error{errs.ErrResourceMissing, e.Err} }

// Names selects the files of each role.
type Names struct {
	Parser      string
	Regenerator string
	Solver      string
}

// DefaultNames returns the stock file names.
func DefaultNames() Names {
	return Names{Parser: DefaultParser, Regenerator: DefaultRegenerator, Solver: DefaultSolver}
}

// Bundle reads the stack from a file system.
type Bundle struct {
	fsys  fs.FS
	names Names

	once  sync.Once
	stack []Script
	err   error
}

// Option configures a Bundle.
type Option func(*Bundle)

// WithNames overrides resource names; empty fields keep the default.
func WithNames(n Names) Option {
	return func(b *Bundle) {
		if n.Parser != "" {
			b.names.Parser = n.Parser
		}
		if n.Regenerator != "" {
			b.names.Regenerator = n.Regenerator
		}
		if n.Solver != "" {
			b.names.Solver = n.Solver
		}
	}
}

// New creates a bundle over fsys.
func New(fsys fs.FS, opts ...Option) *Bundle {
	b := &Bundle{fsys: fsys, names: DefaultNames()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dir creates a bundle over a directory.
func Dir(path string, opts ...Option) *Bundle {
	return New(os.DirFS(path), opts...)
}

// Names returns the effective resource names.
func (b *Bundle) Names() Names { return b.names }

// Stack returns parser, regenerator and solver in evaluation order. The first
// successful load is cached; a failed load is cached as well, so a broken
// bundle fails fast and consistently.
func (b *Bundle) Stack() ([]Script, error) {
	b.once.Do(func() {
		b.stack, b.err = b.load()
	})
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Script, len(b.stack))
	copy(out, b.stack)
	return out, nil
}

func (b *Bundle) load() ([]Script, error) {
	if b.fsys == nil {
		return nil, &MissingError{Role: RoleParser, Name: b.names.Parser, Err: errors.New("no resource file system")}
	}
	order := []struct {
		role Role
		name string
	}{
		{RoleParser, b.names.Parser},
		{RoleRegenerator, b.names.Regenerator},
		{RoleSolver, b.names.Solver},
	}
	log := logger.WithComponent(logger.ComponentAssets)
	stack := make([]Script, 0, len(order))
	for _, it := range order {
		src, from, err := Load(b.fsys, it.name)
		if err != nil {
			return nil, &MissingError{Role: it.role, Name: it.name, Err: err}
		}
		log.Debug("loaded resource", map[string]interface{}{
			"role":  string(it.role),
			"file":  from,
			"bytes": len(src),
		})
		stack = append(stack, Script{Role: it.role, Name: it.name, Source: src})
	}
	return stack, nil
}

// Load reads name from fsys, falling back to name+".br". It returns the text
// and the file it came from.
func Load(fsys fs.FS, name string) (string, string, error) {
	b, err := fs.ReadFile(fsys, name)
	if err == nil {
		if len(b) == 0 {
			return "", name, fmt.Errorf("%s: empty resource", name)
		}
		return string(b), name, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", name, err
	}

	compressed := name + brotliSuffix
	f, cerr := fsys.Open(compressed)
	if cerr != nil {
		if errors.Is(cerr, fs.ErrNotExist) {
			return "", name, err
		}
		return "", compressed, cerr
	}
	defer f.Close()
	out, derr := io.ReadAll(brotli.NewReader(f))
	if derr != nil {
		return "", compressed, fmt.Errorf("%s: brotli: %w", compressed, derr)
	}
	if len(out) == 0 {
		return "", compressed, fmt.Errorf("%s: empty resource", compressed)
	}
	return string(out), compressed, nil
}
