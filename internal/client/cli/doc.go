// Package cli provides the interactive IOU Keeper command-line client.
//
// It wires configuration, the local cache, the session manager, the engine
// client and the services into an interactive REPL. Typical flow: resume the
// stored session or prompt for credentials, show cached records, fetch, then
// execute user commands.
//
// Key features:
//   - Login / Logout / WhoAmI
//   - List with structured filters (issuer:, payee:, state:, id:, amount:, owed:)
//   - Pay, forgive and create IOUs
//   - Optional Prometheus /metrics endpoint
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, Root and runREPL for details.
package cli
