// Package cmap provides a concurrent map sharded by key hash.
//
// Each shard has its own RWMutex, so unrelated keys rarely contend.
// GridBackup uses it for the in-flight job table and for the world's
// ownership and adjacency indexes.
//
// Usage:
//
//	m := cmap.New[int64, chan struct{}]()
//	if _, loaded := m.GetOrSet(id, ch); loaded {
//		// someone else holds id
//	}
package cmap
