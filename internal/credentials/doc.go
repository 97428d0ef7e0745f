// Package credentials stores bearer tokens in the OS-native credential store
// (Keychain on macOS, Credential Manager on Windows, Secret Service on
// Linux) under a fixed service name.
//
// Entries are keyed by server hostname, or hostname:org for cloud servers
// with an organization. Token values never appear in log output. A
// process-local read cache mirrors store reads and is cleared on every
// write, delete, or purge, so no command invocation can observe a stale
// token after mutating the store.
package credentials
