// Package memory provides an in-memory world of identities and grids.
//
// Grid members live in an arena keyed by entity id. Ownership and
// connectivity are separate index tables over those ids, so traversals
// never chase object references:
//
//   - members:   entity id -> GridMember
//   - owners:    identity id -> set of entity ids it owns
//   - links:     entity id -> links touching it
//   - targets:   identity id -> entity id the identity is looking at
//
// Groups are connected components over the link table. Mechanical links
// always join; connector links join only when connections are included.
// Member order inside a group is breadth-first from the lowest entity id,
// visiting neighbours in ascending id order.
//
// World implements the world side of the backup service and the spawner
// used by restores. It is meant to be driven from one goroutine (the
// simulation dispatcher); the indexes themselves are concurrent-safe.
package memory
