package notify

// SchemaDocument describes the notification envelope: required fields, enum
// values and bounds. Transports serve it so clients can validate locally.
func SchemaDocument() map[string]any {
	return map[string]any{
		"schemaVersion": SchemaVersion,
		"required":      []string{"sender", "context", "information"},
		"sender": map[string]any{
			"required": []string{"id", "name", "role"},
			"role":     Roles,
			"aiTool":   AITools,
		},
		"context": map[string]any{
			"required":        []string{"theme"},
			"theme":           Themes,
			"priority":        Priorities,
			"defaultPriority": PriorityMedium,
		},
		"information": map[string]any{
			"required":       []string{"title", "body"},
			"titleMinLength": 1,
			"titleMaxLength": MaxTitleLength,
			"bodyMinLength":  1,
			"format":         Formats,
			"defaultFormat":  FormatText,
			"attachment": map[string]any{
				"required": []string{"type", "url"},
			},
		},
		"actions": map[string]any{
			"required": []string{"type", "label"},
			"type":     ActionTypes,
		},
		"visibility": map[string]any{
			"teams":        Teams,
			"defaultTeams": []Team{TeamAll},
		},
		"metadata": map[string]any{
			"assigned": []string{"id", "timestamp", "channel", "sequence"},
		},
	}
}
