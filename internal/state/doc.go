// Package state persists the CLI's connection registry.
//
// The registry is a schema-versioned JSON file (~/.config/relint/state.json)
// recording which server the user is authenticated against. It holds at most
// one connection at a time: logging in to a different server replaces the
// remembered connection rather than appending to it, and the most recently
// written connection is always the active one. Bearer tokens themselves are
// never stored here; connections only carry the account key under which the
// token lives in the OS credential store.
package state
