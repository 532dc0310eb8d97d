package notify

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

// MaxTitleLength bounds information.title in characters.
const MaxTitleLength = 200

// Validator checks notifications against the schema and fills the
// hub-owned metadata.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate reports every schema violation at once as a *ValidationError.
func (v *Validator) Validate(n Notification) error {
	rules := []validator.Rule{
		validator.RequiredString("sender.id", n.Sender.ID),
		validator.RequiredString("sender.name", n.Sender.Name),
		validator.OneOf("sender.role", n.Sender.Role, Roles),
		validator.When(n.Sender.AITool != "", validator.OneOf("sender.aiTool", n.Sender.AITool, AITools)),

		validator.OneOf("context.theme", n.Context.Theme, Themes),
		validator.OneOf("context.priority", n.Context.Priority, Priorities),

		// Whitespace counts: " " is a valid one-character title.
		validator.MinLenString("information.title", n.Information.Title, 1),
		validator.MaxLenString("information.title", n.Information.Title, MaxTitleLength),
		validator.MinLenString("information.body", n.Information.Body, 1),
		validator.OneOf("information.format", n.Information.Format, Formats),

		validator.EachOneOf("visibility.teams", n.Visibility.Teams, Teams),
	}

	// Attachment and action fields are free-form; only their presence is
	// checked.
	for i, a := range n.Information.Attachments {
		prefix := fmt.Sprintf("information.attachments[%d]", i)
		rules = append(rules,
			validator.MinLenString(prefix+".type", a.Type, 1),
			validator.MinLenString(prefix+".url", a.URL, 1),
		)
	}
	for i, a := range n.Actions {
		prefix := fmt.Sprintf("actions[%d]", i)
		rules = append(rules,
			validator.OneOf(prefix+".type", a.Type, ActionTypes),
			validator.MinLenString(prefix+".label", a.Label, 1),
		)
	}

	if err := validator.Apply(rules...); err != nil {
		return &ValidationError{Errors: validator.ExtractValidationErrors(err)}
	}
	return nil
}

// Enrich sets the channel and sequence, and fills ID and timestamp when they
// are empty.
func (v *Validator) Enrich(n Notification, channel string, sequence int64) Notification {
	if n.Metadata.ID == "" {
		n.Metadata.ID = NewNotificationID()
	}
	if n.Metadata.Timestamp.IsZero() {
		n.Metadata.Timestamp = v.now().UTC().Truncate(time.Microsecond)
	}
	n.Metadata.Channel = channel
	n.Metadata.Sequence = sequence
	return n
}

// ValidateAndEnrich validates n as given and enriches it only when valid.
func (v *Validator) ValidateAndEnrich(n Notification, channel string, sequence int64) (Notification, error) {
	if err := v.Validate(n); err != nil {
		return Notification{}, err
	}
	n = v.Enrich(n, channel, sequence)
	if err := CheckEnriched(n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// CheckEnriched is the last check before persistence.
func CheckEnriched(n Notification) error {
	if n.Metadata.Channel == "" || n.Metadata.Sequence < 1 {
		return ErrNotEnriched
	}
	return nil
}
