// Package integration provides cross-package integration tests for colony.
// These tests wire the engine to the sqlite ledger, the memory store, and
// the mailbox API the way the CLI does.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
