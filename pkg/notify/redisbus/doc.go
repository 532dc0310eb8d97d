// Package redisbus lets several hub processes share sequencing and delivery
// through Redis.
//
// Sequencer numbers publishes with INCR on "<prefix>:seq:<channel>".
// Publisher delivers by PUBLISHing each notification to
// "<prefix>:client:<clientID>", and Relay pattern-subscribes to those
// channels and hands every message to a local notify.Deliverer, usually the
// process's BroadcastDeliverer serving SSE streams.
//
//	seq := redisbus.NewSequencer(client, redisbus.WithSeed(store))
//	pub := redisbus.NewPublisher(client)
//	relay := redisbus.NewRelay(client, streams)
//	go relay.Run(ctx)
//	hub := notify.NewHub(store, notify.WithRouterOptions(
//	    notify.WithSequencer(seq),
//	    notify.WithDeliverer(pub),
//	))
package redisbus
