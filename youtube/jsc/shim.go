package jsc

import (
	"strconv"

	"github.com/ytget/ytjsc/pkg/client"
)

// Fixed page the player believes it is embedded in.
const shimLocation = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

const shimScriptName = "shim.js"

// shimSource builds the browser-like globals that player code probes during
// evaluation. Nothing here reaches the network, the filesystem or a clock.
// ES5 only, so otto can run it too.
func shimSource() string {
	return `(function (global) {
  var URL_RE = /^(https?:)\/\/([^\/:?#]+)(?::(\d+))?([^?#]*)(\?[^#]*)?(#.*)?$/;

  function XMLHttpRequest() {}
  XMLHttpRequest.prototype = {};

  function URL(input, base) {
    var s = String(input);
    var m = URL_RE.exec(s);
    if (!m && base !== undefined && s.charAt(0) === "/") {
      var b = new URL(base);
      m = URL_RE.exec(b.origin + s);
    }
    if (!m) {
      throw new TypeError("Invalid URL: " + s);
    }
    this.protocol = m[1];
    this.hostname = m[2];
    this.port = m[3] || "";
    this.host = this.port ? this.hostname + ":" + this.port : this.hostname;
    this.pathname = m[4] || "/";
    this.search = m[5] || "";
    this.hash = m[6] || "";
    this.origin = this.protocol + "//" + this.host;
    this.href = this.origin + this.pathname + this.search + this.hash;
  }
  URL.prototype.toString = function () { return this.href; };

  function noop() {}

  global.window = global;
  global.self = global;
  global.XMLHttpRequest = XMLHttpRequest;
  global.URL = URL;
  global.navigator = { userAgent: ` + strconv.Quote(client.DefaultUserAgent) + ` };
  global.location = new URL(` + strconv.Quote(shimLocation) + `);
  global.document = {};
  global.console = { log: noop, info: noop, warn: noop, error: noop, debug: noop, trace: noop };
})(this);
`
}
