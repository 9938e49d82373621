// Package conn manages the persistent connection of one chat view.
//
// The package implements:
//   - Manager: owns the lifecycle of a single workspace-scoped connection,
//     joins and leaves the workspace, and reconnects with bounded backoff
//   - Registry: an explicit event-kind to handler subscription table
//   - WebSocketTransport: the gorilla/websocket implementation of Transport
//
// Transport failures and server-pushed errors are published to subscribers
// as events; nothing is returned from or panics across the Manager boundary.
package conn
