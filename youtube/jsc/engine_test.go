package jsc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytjsc/errs"
)

func TestEngineRegistry(t *testing.T) {
	assert.True(t, LocalAvailable())
	assert.Equal(t, []string{"goja", "otto"}, Engines())
	assert.Equal(t, "goja", DefaultEngine())
}

func TestNewEngineUnknown(t *testing.T) {
	_, err := NewEngine("v8")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrEngineUnavailable))
	assert.True(t, IsBootstrap(err))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrCodeEngineUnavailable, e.Code)
}

func TestEngineRun(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		eng, err := NewEngine(name)
		require.NoError(t, err)
		defer eng.Close()
		assert.Equal(t, name, eng.Name())

		out, err := eng.Run("a.js", `var a = 40; a + 2`)
		require.NoError(t, err)
		assert.Equal(t, "42", out)

		out, err = eng.Run("b.js", `undefined`)
		require.NoError(t, err)
		assert.Equal(t, "", out)

		require.NoError(t, eng.SetString("greeting", "hi"))
		out, err = eng.Run("c.js", `greeting + " there"`)
		require.NoError(t, err)
		assert.Equal(t, "hi there", out)
	})
}

func TestEngineScriptError(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		eng, err := NewEngine(name)
		require.NoError(t, err)
		defer eng.Close()

		_, err = eng.Run("boom.js", `throw new Error("kaboom")`)
		require.Error(t, err)
		var se *ScriptError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, name, se.Engine)
		assert.Equal(t, "boom.js", se.Script)
		assert.Contains(t, se.Message, "kaboom")
		assert.Contains(t, se.Detail, "kaboom")

		_, err = eng.Run("syntax.js", `function (`)
		require.Error(t, err)
		assert.True(t, IsScriptError(err))
	})
}

func TestEngineInterrupt(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		eng, err := NewEngine(name)
		require.NoError(t, err)
		defer eng.Close()

		done := make(chan error, 1)
		go func() {
			_, err := eng.Run("loop.js", `for (;;) {}`)
			done <- err
		}()
		// Interrupt until the loop reports it; the first one may land before
		// Run starts and be dropped.
		for {
			eng.Interrupt("stop")
			select {
			case err := <-done:
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.ErrTimeout))
				return
			default:
			}
		}
	})
}

func TestEngineClosed(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		eng, err := NewEngine(name)
		require.NoError(t, err)
		require.NoError(t, eng.Close())
		_, err = eng.Run("x.js", `1`)
		assert.True(t, errors.Is(err, errs.ErrRuntimeClosed))
		assert.True(t, errors.Is(eng.SetString("a", "b"), errs.ErrRuntimeClosed))
		eng.Interrupt("noop")
	})
}
