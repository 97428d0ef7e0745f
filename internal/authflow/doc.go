// Package authflow orchestrates the browser-based login handoff.
//
// A login attempt moves through a short-lived state machine:
//
//	Idle -> ServerStarted -> AwaitingCallback -> {TokenReceived, TimedOut, Cancelled}
//
// On entry the flow binds a loopback callback server, opens the user's
// browser to the server's login page with the chosen port embedded, and
// waits for the page to deliver a bearer token back to the local port. The
// first successful delivery wins; the race against the wall-clock timeout
// (or context cancellation) always tears the server down. This is a
// single-shot token handoff, not an OAuth flow: there are no codes, scopes,
// or refresh tokens.
package authflow
