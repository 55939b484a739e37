// Package ws provides WebSocket connection handling and message routing
// for agent session viewers.
//
// The package implements:
//   - Hub: the client binding table and broadcast router (scoped vs. all)
//   - Client: one live viewer connection with a buffered send queue
//   - Dispatcher: the single entry point for inbound commands
//   - Handler: connection upgrade plus read/write pumps
//   - BuildSync: the full-state snapshot for reconnecting/switching viewers
//
// Key contracts:
//   - Tab-scoped messages never go through the all-connections path and
//     vice versa; scoping is what keeps one tab's stream out of another
//     tab's view.
//   - Sends to a connection that has begun closing are silent no-ops.
//   - Malformed or unrecognized commands are dropped without terminating
//     the connection.
package ws
