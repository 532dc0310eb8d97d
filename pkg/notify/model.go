package notify

import (
	"maps"
	"slices"
	"time"
)

// SchemaVersion is stamped on notifications that do not carry one.
const SchemaVersion = "1.0.0"

// ChannelPermissions lists which roles may subscribe, publish and administer.
// Advisory only.
type ChannelPermissions struct {
	Subscribe []string `json:"subscribe"`
	Publish   []string `json:"publish"`
	Admin     []string `json:"admin"`
}

// DefaultPermissions returns the permission set new channels get.
func DefaultPermissions() ChannelPermissions {
	return ChannelPermissions{
		Subscribe: []string{"all"},
		Publish:   []string{"dev", "consulting", "business"},
		Admin:     []string{"dev"},
	}
}

// Channel is a named topic. Counts and LastNotificationAt are cached stats
// refreshed by the hub.
type Channel struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	CreatedBy          string             `json:"createdBy"`
	Permissions        ChannelPermissions `json:"permissions"`
	Metadata           map[string]any     `json:"metadata"`
	SubscriberCount    int                `json:"subscriberCount"`
	NotificationCount  int                `json:"notificationCount"`
	LastNotificationAt *time.Time         `json:"lastNotificationAt,omitempty"`
}

// SubscriptionFilter narrows which notifications a subscription receives.
// Criteria are ANDed; an empty criterion, nil or not, matches everything.
type SubscriptionFilter struct {
	Priorities []Priority `json:"priority,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Themes     []Theme    `json:"themes,omitempty"`
	Roles      []Role     `json:"roles,omitempty"`
	Senders    []string   `json:"senders,omitempty"`
}

// Subscription binds a client to a channel. A client may hold several
// subscriptions to the same channel.
type Subscription struct {
	ID           string             `json:"id"`
	ClientID     string             `json:"clientId"`
	Channel      string             `json:"channel"`
	SubscribedAt time.Time          `json:"subscribedAt"`
	Filter       SubscriptionFilter `json:"filters"`
}

type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	AITool AITool `json:"aiTool,omitempty"`
	Email  string `json:"email,omitempty"`
}

type Context struct {
	Theme                 Theme      `json:"theme"`
	Priority              Priority   `json:"priority"`
	Validity              *time.Time `json:"validity,omitempty"`
	Tags                  []string   `json:"tags"`
	RelatedConversationID string     `json:"relatedConversationId,omitempty"`
	ProjectID             string     `json:"projectId,omitempty"`
}

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

type Information struct {
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Format      Format       `json:"format"`
	Attachments []Attachment `json:"attachments"`
}

// Metadata is owned by the hub: Channel and Sequence are always overwritten
// on publish, ID and Timestamp are filled when empty.
type Metadata struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	Sequence  int64     `json:"sequence,omitempty"`
}

type Action struct {
	Type  ActionType     `json:"type"`
	Label string         `json:"label"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

type Visibility struct {
	Teams        []Team   `json:"teams"`
	Private      bool     `json:"private"`
	AllowedUsers []string `json:"allowedUsers"`
}

// Notification is the envelope routed through channels.
type Notification struct {
	SchemaVersion string      `json:"schemaVersion"`
	Sender        Sender      `json:"sender"`
	Context       Context     `json:"context"`
	Information   Information `json:"information"`
	Metadata      Metadata    `json:"metadata"`
	Actions       []Action    `json:"actions"`
	Visibility    Visibility  `json:"visibility"`
}

// ApplyDefaults fills optional fields that have documented defaults.
func (n *Notification) ApplyDefaults() {
	if n.SchemaVersion == "" {
		n.SchemaVersion = SchemaVersion
	}
	if n.Context.Priority == "" {
		n.Context.Priority = PriorityMedium
	}
	if n.Information.Format == "" {
		n.Information.Format = FormatText
	}
	if n.Context.Tags == nil {
		n.Context.Tags = []string{}
	}
	if n.Information.Attachments == nil {
		n.Information.Attachments = []Attachment{}
	}
	if n.Actions == nil {
		n.Actions = []Action{}
	}
	if len(n.Visibility.Teams) == 0 {
		n.Visibility.Teams = []Team{TeamAll}
	}
	if n.Visibility.AllowedUsers == nil {
		n.Visibility.AllowedUsers = []string{}
	}
}

// Clone returns a copy that shares no slices or maps with n.
func (n Notification) Clone() Notification {
	c := n
	c.Context.Tags = slices.Clone(n.Context.Tags)
	if n.Context.Validity != nil {
		v := *n.Context.Validity
		c.Context.Validity = &v
	}
	c.Information.Attachments = slices.Clone(n.Information.Attachments)
	if n.Actions != nil {
		c.Actions = make([]Action, len(n.Actions))
		for i, a := range n.Actions {
			a.Data = maps.Clone(a.Data)
			c.Actions[i] = a
		}
	}
	c.Visibility.Teams = slices.Clone(n.Visibility.Teams)
	c.Visibility.AllowedUsers = slices.Clone(n.Visibility.AllowedUsers)
	return c
}

// Clone returns a copy that shares no slices or maps with ch.
func (ch Channel) Clone() Channel {
	c := ch
	c.Permissions = ChannelPermissions{
		Subscribe: slices.Clone(ch.Permissions.Subscribe),
		Publish:   slices.Clone(ch.Permissions.Publish),
		Admin:     slices.Clone(ch.Permissions.Admin),
	}
	c.Metadata = maps.Clone(ch.Metadata)
	if ch.LastNotificationAt != nil {
		t := *ch.LastNotificationAt
		c.LastNotificationAt = &t
	}
	return c
}

// Clone returns a copy that shares no slices with f.
func (f SubscriptionFilter) Clone() SubscriptionFilter {
	return SubscriptionFilter{
		Priorities: slices.Clone(f.Priorities),
		Tags:       slices.Clone(f.Tags),
		Themes:     slices.Clone(f.Themes),
		Roles:      slices.Clone(f.Roles),
		Senders:    slices.Clone(f.Senders),
	}
}

// PublishResult reports what happened to one published notification.
//
// Delivered counts matched subscribers handed to the deliverer, whether or
// not the handoff succeeded; Failed is the subset whose handoff returned an
// error or timed out. Undelivered counts matched subscribers when no
// deliverer is configured. Delivered+Filtered+Undelivered always equals the
// number of subscriptions on the channel.
type PublishResult struct {
	ID          string `json:"id"`
	Sequence    int64  `json:"sequence"`
	Delivered   int    `json:"delivered"`
	Filtered    int    `json:"filtered"`
	Failed      int    `json:"failed"`
	Undelivered int    `json:"undelivered,omitempty"`
}
