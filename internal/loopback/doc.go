// Package loopback implements the localhost-only HTTP server used to receive
// the browser login callback.
//
// The server binds exclusively to 127.0.0.1 and scans a fixed port range
// (64130-64140 by default) so the remote login page knows where to deliver
// the token. Even a loopback listener is reachable from hostile web pages
// running in the local browser, so every request is filtered before it
// reaches the handler:
//
//   - OPTIONS preflight requests are answered immediately with the security
//     headers and an empty body.
//   - A present Origin header must name localhost, 127.0.0.1, or [::1];
//     anything else is rejected with 403.
//   - The Host header must resolve to the same loopback set, which defends
//     against DNS rebinding independently of the Origin check.
//   - POST bodies are capped at 4096 bytes and rejected with 413 before any
//     parsing.
//
// All responses, including rejections, carry a fixed baseline of security
// headers (CSP, nosniff, frame denial, no-store caching).
package loopback
