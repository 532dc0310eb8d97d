// Package notify is a channel-based publish/subscribe notification hub.
//
// Clients create channels, subscribe to them with optional filters and publish
// structured notifications. Every publish is validated, given the next
// per-channel sequence number, stored in a bounded history and matched
// against each subscription's filter; matches are handed to a Deliverer.
//
// # Components
//
//   - Storage persists channels, subscriptions and history. MemoryStorage is
//     provided here; SQL and document backends live in sub-packages.
//   - ChannelRegistry and SubscriptionRegistry manage lifecycles.
//   - Validator checks the schema and fills hub-owned metadata.
//   - Sequencer assigns gap-free per-channel sequence numbers.
//   - Router runs the publish pipeline.
//   - Hub is the facade transports call.
//
// # Usage
//
//	streams := notify.NewBroadcastDeliverer(16)
//	hub := notify.NewHub(notify.NewMemoryStorage(1000),
//	    notify.WithRouterOptions(notify.WithDeliverer(streams)),
//	)
//
//	_, _ = hub.CreateChannel(ctx, "ops", "Operations", "")
//	_, _ = hub.Subscribe(ctx, "client-a", "ops", &notify.SubscriptionFilter{
//	    Priorities: []notify.Priority{notify.PriorityHigh, notify.PriorityCritical},
//	})
//	res, err := hub.Publish(ctx, notify.PublishRequest{Channel: "ops", ...})
//
// # Errors
//
// Lookups of missing channels return nil without an error. Creating a
// duplicate channel returns ErrAlreadyExists; invalid notifications return a
// *ValidationError matching ErrInvalidNotification; backend failures match
// ErrStorage.
package notify
