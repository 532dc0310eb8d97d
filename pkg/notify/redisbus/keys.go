package redisbus

import "strings"

// DefaultPrefix namespaces every key and pub/sub channel.
const DefaultPrefix = "notifyhub"

func sequenceKey(prefix, channel string) string {
	return prefix + ":seq:" + channel
}

func clientTopic(prefix, clientID string) string {
	return prefix + ":client:" + clientID
}

func clientPattern(prefix string) string {
	return prefix + ":client:*"
}

// clientFromTopic extracts the client ID from a topic built by clientTopic.
func clientFromTopic(prefix, topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, prefix+":client:")
	return id, ok && id != ""
}
