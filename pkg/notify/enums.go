package notify

import (
	"fmt"
	"slices"
)

// Role identifies the sender's team function.
type Role string

const (
	RoleDev        Role = "dev"
	RoleConsulting Role = "consulting"
	RoleBusiness   Role = "business"
	RoleOther      Role = "other"
)

// Roles lists every valid Role.
var Roles = []Role{RoleDev, RoleConsulting, RoleBusiness, RoleOther}

func (r Role) Valid() bool { return slices.Contains(Roles, r) }

func (r *Role) UnmarshalText(b []byte) error {
	return unmarshalEnum(r, b, Roles, "role")
}

// Theme classifies what a notification is about.
type Theme string

const (
	ThemeArchitectureDecision Theme = "architecture-decision"
	ThemeStateUpdate          Theme = "state-update"
	ThemeMemorySync           Theme = "memory-sync"
	ThemeQuestion             Theme = "question"
	ThemeDecision             Theme = "decision"
	ThemeAlert                Theme = "alert"
	ThemeInfo                 Theme = "info"
	ThemeDiscussion           Theme = "discussion"
)

var Themes = []Theme{
	ThemeArchitectureDecision, ThemeStateUpdate, ThemeMemorySync, ThemeQuestion,
	ThemeDecision, ThemeAlert, ThemeInfo, ThemeDiscussion,
}

func (t Theme) Valid() bool { return slices.Contains(Themes, t) }

func (t *Theme) UnmarshalText(b []byte) error {
	return unmarshalEnum(t, b, Themes, "theme")
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool { return slices.Contains(Priorities, p) }

func (p *Priority) UnmarshalText(b []byte) error {
	return unmarshalEnum(p, b, Priorities, "priority")
}

// Format tells readers how to render Information.Body.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

var Formats = []Format{FormatText, FormatMarkdown, FormatJSON, FormatHTML}

func (f Format) Valid() bool { return slices.Contains(Formats, f) }

func (f *Format) UnmarshalText(b []byte) error {
	return unmarshalEnum(f, b, Formats, "format")
}

// AITool tags notifications produced through an assistant.
type AITool string

const (
	AIToolClaude  AITool = "claude"
	AIToolChatGPT AITool = "chatgpt"
	AIToolGemini  AITool = "gemini"
	AIToolOther   AITool = "other"
)

var AITools = []AITool{AIToolClaude, AIToolChatGPT, AIToolGemini, AIToolOther}

func (a AITool) Valid() bool { return slices.Contains(AITools, a) }

func (a *AITool) UnmarshalText(b []byte) error {
	return unmarshalEnum(a, b, AITools, "aiTool")
}

type ActionType string

const (
	ActionAcknowledge ActionType = "acknowledge"
	ActionRespond     ActionType = "respond"
	ActionReview      ActionType = "review"
	ActionApprove     ActionType = "approve"
	ActionReject      ActionType = "reject"
	ActionCustom      ActionType = "custom"
)

var ActionTypes = []ActionType{
	ActionAcknowledge, ActionRespond, ActionReview, ActionApprove, ActionReject, ActionCustom,
}

func (a ActionType) Valid() bool { return slices.Contains(ActionTypes, a) }

func (a *ActionType) UnmarshalText(b []byte) error {
	return unmarshalEnum(a, b, ActionTypes, "action type")
}

// Team scopes Visibility. TeamAll means everyone.
type Team string

const (
	TeamDev        Team = "dev"
	TeamConsulting Team = "consulting"
	TeamBusiness   Team = "business"
	TeamAll        Team = "all"
)

var Teams = []Team{TeamDev, TeamConsulting, TeamBusiness, TeamAll}

func (t Team) Valid() bool { return slices.Contains(Teams, t) }

func (t *Team) UnmarshalText(b []byte) error {
	return unmarshalEnum(t, b, Teams, "team")
}

// Permission role sets for channels. They are stored and returned but not
// enforced.
var (
	SubscribeRoles = []string{"dev", "consulting", "business", "viewer", "all"}
	PublishRoles   = []string{"dev", "consulting", "business", "admin"}
	AdminRoles     = []string{"dev", "admin"}
)

func unmarshalEnum[T ~string](dst *T, b []byte, allowed []T, name string) error {
	v := T(b)
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("%w: invalid %s %q", ErrInvalidNotification, name, string(b))
	}
	*dst = v
	return nil
}
