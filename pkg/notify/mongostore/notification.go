package mongostore

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// notificationDoc stores a notification as native subdocuments. The
// top-level priority and timestamp are copies used for queries; times inside
// the subdocuments are RFC 3339 strings because BSON dates stop at
// milliseconds.
type notificationDoc struct {
	ID             string    `bson:"_id"`
	Channel        string    `bson:"channel"`
	Sequence       int64     `bson:"sequence"`
	NotificationID string    `bson:"notificationId"`
	Priority       string    `bson:"priority"`
	Timestamp      time.Time `bson:"timestamp"`

	SchemaVersion string         `bson:"schemaVersion"`
	Sender        senderDoc      `bson:"sender"`
	Context       contextDoc     `bson:"context"`
	Information   informationDoc `bson:"information"`
	Metadata      metadataDoc    `bson:"metadata"`
	Actions       []actionDoc    `bson:"actions"`
	Visibility    visibilityDoc  `bson:"visibility"`
}

type senderDoc struct {
	ID     string        `bson:"id"`
	Name   string        `bson:"name"`
	Role   notify.Role   `bson:"role"`
	AITool notify.AITool `bson:"aiTool,omitempty"`
	Email  string        `bson:"email,omitempty"`
}

type contextDoc struct {
	Theme                 notify.Theme    `bson:"theme"`
	Priority              notify.Priority `bson:"priority"`
	Validity              string          `bson:"validity,omitempty"`
	Tags                  []string        `bson:"tags"`
	RelatedConversationID string          `bson:"relatedConversationId,omitempty"`
	ProjectID             string          `bson:"projectId,omitempty"`
}

type attachmentDoc struct {
	Type string `bson:"type"`
	URL  string `bson:"url"`
	Name string `bson:"name,omitempty"`
}

type informationDoc struct {
	Title       string          `bson:"title"`
	Body        string          `bson:"body"`
	Format      notify.Format   `bson:"format"`
	Attachments []attachmentDoc `bson:"attachments"`
}

type metadataDoc struct {
	ID        string `bson:"id"`
	Timestamp string `bson:"timestamp"`
	Version   string `bson:"version,omitempty"`
	Channel   string `bson:"channel,omitempty"`
	ReplyTo   string `bson:"replyTo,omitempty"`
	Sequence  int64  `bson:"sequence,omitempty"`
}

type actionDoc struct {
	Type  notify.ActionType `bson:"type"`
	Label string            `bson:"label"`
	URL   string            `bson:"url,omitempty"`
	Data  map[string]any    `bson:"data,omitempty"`
}

type visibilityDoc struct {
	Teams        []notify.Team `bson:"teams"`
	Private      bool          `bson:"private"`
	AllowedUsers []string      `bson:"allowedUsers"`
}

func newNotificationDoc(n notify.Notification) notificationDoc {
	doc := notificationDoc{
		ID:             fmt.Sprintf("%s/%d", n.Metadata.Channel, n.Metadata.Sequence),
		Channel:        n.Metadata.Channel,
		Sequence:       n.Metadata.Sequence,
		NotificationID: n.Metadata.ID,
		Priority:       string(n.Context.Priority),
		Timestamp:      n.Metadata.Timestamp,
		SchemaVersion:  n.SchemaVersion,
		Sender: senderDoc{
			ID:     n.Sender.ID,
			Name:   n.Sender.Name,
			Role:   n.Sender.Role,
			AITool: n.Sender.AITool,
			Email:  n.Sender.Email,
		},
		Context: contextDoc{
			Theme:                 n.Context.Theme,
			Priority:              n.Context.Priority,
			Tags:                  n.Context.Tags,
			RelatedConversationID: n.Context.RelatedConversationID,
			ProjectID:             n.Context.ProjectID,
		},
		Information: informationDoc{
			Title:  n.Information.Title,
			Body:   n.Information.Body,
			Format: n.Information.Format,
		},
		Metadata: metadataDoc{
			ID:        n.Metadata.ID,
			Timestamp: formatTime(n.Metadata.Timestamp),
			Version:   n.Metadata.Version,
			Channel:   n.Metadata.Channel,
			ReplyTo:   n.Metadata.ReplyTo,
			Sequence:  n.Metadata.Sequence,
		},
		Visibility: visibilityDoc{
			Teams:        n.Visibility.Teams,
			Private:      n.Visibility.Private,
			AllowedUsers: n.Visibility.AllowedUsers,
		},
	}
	if n.Context.Validity != nil {
		doc.Context.Validity = formatTime(*n.Context.Validity)
	}
	if n.Information.Attachments != nil {
		doc.Information.Attachments = make([]attachmentDoc, 0, len(n.Information.Attachments))
		for _, a := range n.Information.Attachments {
			doc.Information.Attachments = append(doc.Information.Attachments, attachmentDoc(a))
		}
	}
	if n.Actions != nil {
		doc.Actions = make([]actionDoc, 0, len(n.Actions))
		for _, a := range n.Actions {
			doc.Actions = append(doc.Actions, actionDoc(a))
		}
	}
	return doc
}

func (d notificationDoc) toNotification() (notify.Notification, error) {
	ts, err := parseTime(d.Metadata.Timestamp)
	if err != nil {
		return notify.Notification{}, err
	}
	n := notify.Notification{
		SchemaVersion: d.SchemaVersion,
		Sender: notify.Sender{
			ID:     d.Sender.ID,
			Name:   d.Sender.Name,
			Role:   d.Sender.Role,
			AITool: d.Sender.AITool,
			Email:  d.Sender.Email,
		},
		Context: notify.Context{
			Theme:                 d.Context.Theme,
			Priority:              d.Context.Priority,
			Tags:                  d.Context.Tags,
			RelatedConversationID: d.Context.RelatedConversationID,
			ProjectID:             d.Context.ProjectID,
		},
		Information: notify.Information{
			Title:  d.Information.Title,
			Body:   d.Information.Body,
			Format: d.Information.Format,
		},
		Metadata: notify.Metadata{
			ID:        d.Metadata.ID,
			Timestamp: ts,
			Version:   d.Metadata.Version,
			Channel:   d.Metadata.Channel,
			ReplyTo:   d.Metadata.ReplyTo,
			Sequence:  d.Metadata.Sequence,
		},
		Visibility: notify.Visibility{
			Teams:        d.Visibility.Teams,
			Private:      d.Visibility.Private,
			AllowedUsers: d.Visibility.AllowedUsers,
		},
	}
	if d.Context.Validity != "" {
		v, err := parseTime(d.Context.Validity)
		if err != nil {
			return notify.Notification{}, err
		}
		n.Context.Validity = &v
	}
	if d.Information.Attachments != nil {
		n.Information.Attachments = make([]notify.Attachment, 0, len(d.Information.Attachments))
		for _, a := range d.Information.Attachments {
			n.Information.Attachments = append(n.Information.Attachments, notify.Attachment(a))
		}
	}
	if d.Actions != nil {
		n.Actions = make([]notify.Action, 0, len(d.Actions))
		for _, a := range d.Actions {
			n.Actions = append(n.Actions, notify.Action(a))
		}
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
