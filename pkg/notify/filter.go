package notify

import "slices"

// Matches reports whether n passes every criterion of f. Tags match when the
// two tag sets intersect; the other criteria are membership tests.
func Matches(n Notification, f SubscriptionFilter) bool {
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, n.Context.Priority) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, n.Context.Tags) {
		return false
	}
	if len(f.Themes) > 0 && !slices.Contains(f.Themes, n.Context.Theme) {
		return false
	}
	if len(f.Roles) > 0 && !slices.Contains(f.Roles, n.Sender.Role) {
		return false
	}
	if len(f.Senders) > 0 && !slices.Contains(f.Senders, n.Sender.ID) {
		return false
	}
	return true
}

func intersects(a, b []string) bool {
	for _, v := range b {
		if slices.Contains(a, v) {
			return true
		}
	}
	return false
}
