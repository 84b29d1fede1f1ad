package jsc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/types"
)

// Error codes
const (
	ErrCodeEngineUnavailable = "BOOTSTRAP_ENGINE_UNAVAILABLE"
	ErrCodeResourceMissing   = "BOOTSTRAP_RESOURCE_MISSING"
	ErrCodeBootstrapScript   = "BOOTSTRAP_SCRIPT_FAILED"
	ErrCodeEvaluation        = "EVALUATION_FAILED"
	ErrCodeTimeout           = "EVALUATION_TIMEOUT"
	ErrCodeDecode            = "DECODE_FAILED"
	ErrCodeRuntimeUnusable   = "RUNTIME_UNUSABLE"
	ErrCodeRuntimeClosed     = "RUNTIME_CLOSED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// Error represents a structured error with code and details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Details != nil {
		fmt.Fprintf(&b, " (%v)", e.Details)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the cause, which chains to one of the errs sentinels.
func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code, message and cause
func NewError(code string, message string, cause error, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// ScriptError carries the diagnostic text of an exception raised inside the
// script engine.
type ScriptError struct {
	Engine string
	Script string
	// Message is the one-line exception text.
	Message string
	// Detail is the engine's full rendering, usually with a stack trace.
	Detail string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Engine, e.Script, e.Message)
}

// DecodeError reports sandbox output that does not match the wire schema.
// Raw is the offending text, verbatim.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode solver output: %v (raw output: %q)", e.Err, e.Raw)
}

// Unwrap makes errors.Is(err, errs.ErrDecode) true.
func (e *DecodeError) Unwrap() []error { return []error{errs.ErrDecode, e.Err} }

// KindError reports that one challenge group failed inside the sandbox.
type KindError struct {
	Kind    types.Kind
	Message string
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s challenges: %s", e.Kind, e.Message)
}

func (e *KindError) Unwrap() error { return errs.ErrSolver }

// SolveError collects every per-kind failure of one batch. It is returned next
// to a response that still holds the kinds that succeeded.
type SolveError struct {
	Errors []*KindError
}

func (e *SolveError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, ke := range e.Errors {
		parts[i] = ke.Error()
	}
	return "solve: " + strings.Join(parts, "; ")
}

// Unwrap exposes each KindError to errors.Is and errors.As.
func (e *SolveError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ke := range e.Errors {
		out[i] = ke
	}
	return out
}

// Failed reports whether kind is among the failed kinds.
func (e *SolveError) Failed(kind types.Kind) bool {
	for _, ke := range e.Errors {
		if ke.Kind == kind {
			return true
		}
	}
	return false
}

// KindFailed reports whether err records a failure of the given kind.
func KindFailed(err error, kind types.Kind) bool {
	var se *SolveError
	if errors.As(err, &se) {
		return se.Failed(kind)
	}
	var ke *KindError
	return errors.As(err, &ke) && ke.Kind == kind
}

func hasCode(err error, codes ...string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

// IsBootstrap returns true if the error is fatal for a runtime under construction
func IsBootstrap(err error) bool {
	return hasCode(err, ErrCodeEngineUnavailable, ErrCodeResourceMissing, ErrCodeBootstrapScript)
}

// IsTimeout returns true if the error is a timeout error
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsDecode returns true if sandbox output was malformed
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsScriptError returns true if the error carries a script exception
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}

// IsUnusable returns true if the runtime that produced err must be discarded
func IsUnusable(err error) bool {
	return errors.Is(err, errs.ErrRuntimeBroken) || errors.Is(err, errs.ErrRuntimeClosed)
}
