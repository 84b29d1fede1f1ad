//go:build !nojsc

package jsc

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/ytget/ytjsc/errs"
)

const (
	gojaEngineName = "goja"
	// gojaMaxCallStack bounds recursion in hostile player code.
	gojaMaxCallStack = 1 << 14
)

func init() {
	registerEngine(gojaEngineName, newGojaEngine, true)
}

// gojaEngine runs scripts on a dedicated goja.Runtime.
type gojaEngine struct {
	vm *goja.Runtime
}

func newGojaEngine() (Engine, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(gojaMaxCallStack)
	return &gojaEngine{vm: vm}, nil
}

func (e *gojaEngine) Name() string { return gojaEngineName }

func (e *gojaEngine) Run(name, src string) (string, error) {
	if e.vm == nil {
		return "", errs.ErrRuntimeClosed
	}
	// Drop an interrupt that arrived after the previous evaluation finished.
	e.vm.ClearInterrupt()

	v, err := e.vm.RunScript(name, src)
	if err != nil {
		return "", e.wrap(name, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

func (e *gojaEngine) wrap(name string, err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return fmt.Errorf("%w: %v", errs.ErrTimeout, ie.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{Engine: gojaEngineName, Script: name, Message: ex.Error(), Detail: ex.String()}
	}
	// Compile errors (*goja.CompilerSyntaxError and friends).
	return &ScriptError{Engine: gojaEngineName, Script: name, Message: err.Error(), Detail: err.Error()}
}

func (e *gojaEngine) SetString(name, value string) error {
	if e.vm == nil {
		return errs.ErrRuntimeClosed
	}
	return e.vm.Set(name, value)
}

func (e *gojaEngine) Interrupt(reason string) {
	if vm := e.vm; vm != nil {
		vm.Interrupt(reason)
	}
}

func (e *gojaEngine) Close() error {
	e.vm = nil
	return nil
}
