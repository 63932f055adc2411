package compose

// BridgeScript is injected ahead of all user code. It wraps the preview's
// console.log/warn/error once per document and installs a global error
// handler. Every emission is posted to the host as a structured event tagged
// with the revision captured when the document was written, so events from a
// discarded document keep their old revision and can be filtered.
//
// Two channels are supported: a CDP binding named __codepadRelay (headless
// preview) and window.parent.postMessage (browser host page). Formatting
// happens on the host side. The bridge only reduces the arguments to plain
// JSON values: DOM nodes become their markup, function members are dropped
// and values that cannot be encoded fall back to their string form.
const BridgeScript = `(function () {
  "use strict";
  var revision = 0;
  try {
    var frame = window.frameElement;
    if (frame && frame.dataset && frame.dataset.revision) {
      revision = Number(frame.dataset.revision) || 0;
    }
  } catch (e) {}

  function encode(value) {
    if (typeof value === "string") return value;
    if (value === undefined) return "undefined";
    if (typeof value === "function" || typeof value === "symbol" || typeof value === "bigint") return String(value);
    if (value instanceof Error) return String(value);
    if (typeof Node === "function" && value instanceof Node) {
      return value.outerHTML || value.nodeName || String(value);
    }
    try {
      var json = JSON.stringify(value);
      return json === undefined ? String(value) : JSON.parse(json);
    } catch (e) {
      return String(value);
    }
  }

  // A relay failure must never reach user code.
  function post(event) {
    event.revision = revision;
    try {
      if (typeof window.__codepadRelay === "function") {
        window.__codepadRelay(JSON.stringify(event));
        return;
      }
      if (window.parent && window.parent !== window) {
        window.parent.postMessage({ codepad: event }, "*");
      }
    } catch (e) {}
  }

  ["log", "warn", "error"].forEach(function (level) {
    var native = console[level];
    console[level] = function () {
      var args = Array.prototype.slice.call(arguments);
      if (native) native.apply(console, args);
      post({ kind: level, args: args.map(encode) });
    };
  });

  window.onerror = function (message, source, line, column) {
    post({
      kind: "uncaught",
      message: String(message),
      source: source ? String(source) : "",
      line: line || 0,
      column: column || 0
    });
    return true;
  };
})();`
