// Package ws is the relay side of the persistent connection.
//
// Clients connect to a single endpoint and subscribe to one workspace at a
// time with join_workspace. The package implements:
//   - Hub: the clients currently subscribed to one workspace
//   - HubManager: the workspace rooms and each client's membership
//   - Handler: upgrades connections and routes inbound frames
//   - Service: fans persisted messages out to workspace rooms
//
// Typing signals are relayed to the other members of the sender's room.
// Frames the relay cannot route are answered with an error event.
package ws
