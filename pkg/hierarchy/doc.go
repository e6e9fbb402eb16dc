// Package hierarchy keeps each account's organization tree in memory and
// applies tree mutations through a gateway.Gateway.
//
// # Synchronization
//
// Initialize subscribes to the account's entities collection. Every
// snapshot the gateway delivers replaces the in-memory list wholesale;
// Loading reports true until the first snapshot arrives.
//
// AddEntity and CopyUser only write to the gateway and rely on the
// snapshot for visibility. UpdateEntity, MoveEntity and the permission
// operations replace the entity in memory after the write succeeds, so a
// failed write never advances local state.
//
// # Invariants
//
// The parent relation stays a forest: MoveEntity and parent changes in
// UpdateEntity walk the ancestors of the new parent and return ErrCycle
// when the moved entity is among them. DeleteEntity removes the whole
// subtree, children before parents.
//
// Every operation takes the account id explicitly and returns
// ErrNoActiveAccount when it is empty.
package hierarchy
