package jsc

import (
	"bytes"
	"context"
	"testing"
	"testing/fstest"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/youtube/jsc/assets"
)

// Minimal stand-ins for the bundled stack. The parser and regenerator are
// identity transforms; the helper evaluates the player, which defines nFn
// and sigFn, and applies them to every challenge. ES5 only so that both
// engines run them.
const (
	fakeParser = `var meriyah = { parse: function (src) { return { type: "Program", src: src }; } };`
	fakeRegen  = `var astring = { generate: function (ast) { return ast.src; } };`
	fakeSolver = `
function jsc(input) {
  var src;
  if (input.type === "player") {
    src = input.player;
  } else if (input.type === "preprocessed_player") {
    src = input.preprocessed_player;
  } else {
    return { type: "error", error: "unknown input type " + input.type };
  }
  var code = astring.generate(meriyah.parse(src));
  var fns;
  try {
    fns = (new Function(code + "\n;return { n: typeof nFn === 'function' ? nFn : null, sig: typeof sigFn === 'function' ? sigFn : null };"))();
  } catch (e) {
    return { type: "error", error: "player: " + e };
  }
  var responses = [];
  for (var i = 0; i < input.requests.length; i++) {
    var req = input.requests[i];
    var fn = fns[req.type];
    if (!fn) {
      responses.push({ type: "error", error: "no " + req.type + " function in player" });
      continue;
    }
    try {
      var data = {};
      for (var j = 0; j < req.challenges.length; j++) {
        data[req.challenges[j]] = String(fn(req.challenges[j]));
      }
      responses.push({ type: "result", data: data });
    } catch (e) {
      responses.push({ type: "error", error: String(e) });
    }
  }
  var out = { type: "result", responses: responses };
  if (input.output_preprocessed) {
    out.preprocessed_player = "/* preprocessed */" + code;
  }
  return out;
}
`
)

// Players
const (
	goodPlayer = `
function nFn(x) { return x.split("").reverse().join(""); }
function sigFn(x) { return x.toUpperCase(); }
`
	noSigPlayer   = `function nFn(x) { return x.split("").reverse().join(""); }`
	throwNPlayer  = `function nFn(x) { throw new Error("n broken"); } function sigFn(x) { return x.toUpperCase(); }`
	brokenPlayer  = `function nFn(x) { return x`
	emptyFnPlayer = `var nothing = true;`
)

func stackFS(overrides map[string]string) fstest.MapFS {
	files := map[string]string{
		assets.DefaultParser:      fakeParser,
		assets.DefaultRegenerator: fakeRegen,
		assets.DefaultSolver:      fakeSolver,
	}
	for name, src := range overrides {
		files[name] = src
	}
	fsys := fstest.MapFS{}
	for name, src := range files {
		if src == "" {
			continue
		}
		fsys[name] = &fstest.MapFile{Data: []byte(src)}
	}
	return fsys
}

func testStack(overrides map[string]string) *assets.Bundle {
	return assets.New(stackFS(overrides))
}

func captureLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := logger.DefaultConfig()
	cfg.Output = &buf
	cfg.Format = logger.FormatJSON
	cfg.Level = logger.DEBUG
	for c := range cfg.Components {
		cfg.Components[c] = true
	}
	return logger.New(cfg), &buf
}

// swapGlobalLogger installs l as the global logger and returns a restore func.
func swapGlobalLogger(l *logger.Logger) func() {
	prev := logger.GetGlobalLogger()
	logger.SetGlobalLogger(l)
	return func() { logger.SetGlobalLogger(prev) }
}

func newTestRuntime(t *testing.T, engine string, opts ...Option) *Runtime {
	t.Helper()
	all := append([]Option{WithEngine(engine), WithStack(testStack(nil)), WithLogger(logger.Nop())}, opts...)
	rt, err := NewRuntime(context.Background(), all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// forEachEngine runs fn once per compiled-in engine.
func forEachEngine(t *testing.T, fn func(t *testing.T, engine string)) {
	t.Helper()
	names := Engines()
	require.NotEmpty(t, names)
	for _, name := range names {
		name := name
		t.Run(name, func(t *testing.T) { fn(t, name) })
	}
}

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				if c := metric.GetCounter(); c != nil {
					return c.GetValue()
				}
				if g := metric.GetGauge(); g != nil {
					return g.GetValue()
				}
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

const testTimeout = 200 * time.Millisecond
