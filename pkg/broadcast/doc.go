// Package broadcast provides an in-process, non-blocking fan-out primitive.
//
// MemoryBroadcaster delivers each message to all current subscribers without
// ever blocking the sender: a subscriber whose buffer is full is disconnected
// and its channel closed, so readers see the end of the stream and can
// reconnect. Subscriptions end when their context is cancelled.
//
//	b := broadcast.NewMemoryBroadcaster[notify.Notification](16)
//	sub := b.Subscribe(r.Context())
//	for n := range sub.Receive() {
//	    writeEvent(w, n)
//	}
package broadcast
