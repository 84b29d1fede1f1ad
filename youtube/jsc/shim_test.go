package jsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytjsc/pkg/client"
)

func shimmedEngine(t *testing.T, name string) Engine {
	t.Helper()
	eng, err := NewEngine(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	_, err = eng.Run(shimScriptName, shimSource())
	require.NoError(t, err)
	return eng
}

func TestShimGlobals(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		eng := shimmedEngine(t, name)

		tests := []struct {
			name string
			src  string
			want string
		}{
			{"window is global", `String(window === this)`, "true"},
			{"document", `typeof document + ":" + Object.keys(document).length`, "object:0"},
			{"user agent", `navigator.userAgent`, client.DefaultUserAgent},
			{"location", `location.href`, shimLocation},
			{"window location", `window.location.hostname + window.location.pathname + window.location.search`, "www.youtube.com/watch?v=dQw4w9WgXcQ"},
			{"xhr constructor", `typeof XMLHttpRequest`, "function"},
			{"xhr empty prototype", `String(Object.keys(XMLHttpRequest.prototype).length)`, "0"},
			{"xhr instanceof", `String(new XMLHttpRequest() instanceof XMLHttpRequest)`, "true"},
			{"xhr has no open", `typeof new XMLHttpRequest().open`, "undefined"},
			{"console is silent", `console.log("x"); "ok"`, "ok"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := eng.Run("probe.js", tt.src)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})
}

func TestShimURL(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		eng := shimmedEngine(t, name)

		got, err := eng.Run("url.js", `
var u = new URL("https://example.com:8080/a/b?x=1#frag");
[u.protocol, u.hostname, u.port, u.host, u.pathname, u.search, u.hash, u.origin, String(u)].join("|")`)
		require.NoError(t, err)
		assert.Equal(t, "https:|example.com|8080|example.com:8080|/a/b|?x=1|#frag|https://example.com:8080|https://example.com:8080/a/b?x=1#frag", got)

		got, err = eng.Run("url2.js", `var v = new URL("http://host"); [v.port, v.pathname, v.search, v.hash].join("|")`)
		require.NoError(t, err)
		assert.Equal(t, "|/||", got)

		got, err = eng.Run("url3.js", `new URL("/s/player.js", "https://www.youtube.com/watch").href`)
		require.NoError(t, err)
		assert.Equal(t, "https://www.youtube.com/s/player.js", got)

		got, err = eng.Run("url4.js", `try { new URL("ftp://example.com"); "parsed" } catch (e) { String(e instanceof TypeError) }`)
		require.NoError(t, err)
		assert.Equal(t, "true", got)
	})
}

func TestShimIsolation(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		a := shimmedEngine(t, name)
		b := shimmedEngine(t, name)

		_, err := a.Run("mutate.js", `navigator.userAgent = "changed"; window.marker = 1;`)
		require.NoError(t, err)

		got, err := b.Run("probe.js", `navigator.userAgent + ":" + typeof marker`)
		require.NoError(t, err)
		assert.Equal(t, client.DefaultUserAgent+":undefined", got)
	})
}
