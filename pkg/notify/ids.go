package notify

import (
	"strings"

	"github.com/google/uuid"
)

func shortID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + hex[:12]
}

// NewNotificationID returns "notif-" followed by 12 hex characters.
func NewNotificationID() string { return shortID("notif-") }

// NewSubscriptionID returns "sub-" followed by 12 hex characters.
func NewSubscriptionID() string { return shortID("sub-") }
