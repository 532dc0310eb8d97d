// Package mongostore stores channels, subscriptions and notification history
// in MongoDB. Its Sequencer keeps per-channel counters in the same database.
package mongostore
