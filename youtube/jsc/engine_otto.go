//go:build !nojsc

package jsc

import (
	"errors"
	"fmt"

	"github.com/robertkrimen/otto"

	"github.com/ytget/ytjsc/errs"
)

const ottoEngineName = "otto"

func init() {
	registerEngine(ottoEngineName, newOttoEngine, false)
}

// ottoHalt is the panic value used to unwind an interrupted otto evaluation.
type ottoHalt struct{ reason string }

// ottoEngine runs scripts on otto. It only understands ES5, so it suits
// helper stacks that were down-levelled at packaging time.
type ottoEngine struct {
	vm *otto.Otto
}

func newOttoEngine() (Engine, error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	return &ottoEngine{vm: vm}, nil
}

func (e *ottoEngine) Name() string { return ottoEngineName }

func (e *ottoEngine) Run(name, src string) (out string, err error) {
	if e.vm == nil {
		return "", errs.ErrRuntimeClosed
	}
	// Drop an interrupt that arrived after the previous evaluation finished.
	select {
	case <-e.vm.Interrupt:
	default:
	}

	defer func() {
		if caught := recover(); caught != nil {
			if h, ok := caught.(ottoHalt); ok {
				out, err = "", fmt.Errorf("%w: %s", errs.ErrTimeout, h.reason)
				return
			}
			panic(caught)
		}
	}()

	script, err := e.vm.Compile(name, src)
	if err != nil {
		return "", &ScriptError{Engine: ottoEngineName, Script: name, Message: err.Error(), Detail: err.Error()}
	}
	v, err := e.vm.Run(script)
	if err != nil {
		var oe *otto.Error
		if errors.As(err, &oe) {
			return "", &ScriptError{Engine: ottoEngineName, Script: name, Message: oe.Error(), Detail: oe.String()}
		}
		return "", &ScriptError{Engine: ottoEngineName, Script: name, Message: err.Error(), Detail: err.Error()}
	}
	if v.IsUndefined() || v.IsNull() {
		return "", nil
	}
	return v.String(), nil
}

func (e *ottoEngine) SetString(name, value string) error {
	if e.vm == nil {
		return errs.ErrRuntimeClosed
	}
	return e.vm.Set(name, value)
}

func (e *ottoEngine) Interrupt(reason string) {
	vm := e.vm
	if vm == nil {
		return
	}
	select {
	case vm.Interrupt <- func() { panic(ottoHalt{reason: reason}) }:
	default:
	}
}

func (e *ottoEngine) Close() error {
	e.vm = nil
	return nil
}
