// Package redis connects go-redis clients with retry and exposes a health
// probe. The notification hub uses it for its distributed sequencer and
// cross-process fan-out.
package redis
