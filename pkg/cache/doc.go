// Package cache provides a generic, thread-safe LRU map.
//
// The hub uses it to bound per-client state such as live notification
// streams: when a new client pushes the cache over capacity, the least
// recently used client is evicted and its resources are released through the
// OnEvict callback.
//
//	streams := cache.NewLRU[string, *broadcast.MemoryBroadcaster[Notification]](1024)
//	streams.OnEvict(func(_ string, b *broadcast.MemoryBroadcaster[Notification]) { _ = b.Close() })
//	b := streams.GetOrCreate(clientID, func() *broadcast.MemoryBroadcaster[Notification] {
//	    return broadcast.NewMemoryBroadcaster[Notification](16)
//	})
package cache
