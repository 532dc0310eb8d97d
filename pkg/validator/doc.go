// Package validator is a small declarative rule engine.
//
// Each helper returns a Rule (a deferred check plus its error); Apply runs a
// list of rules and aggregates the failures into ValidationErrors, which
// implements error and keeps one entry per failing field path:
//
//	err := validator.Apply(
//	    validator.RequiredString("information.title", n.Information.Title),
//	    validator.MaxLenString("information.title", n.Information.Title, 200),
//	    validator.When(n.Sender.AITool != "", validator.OneOf("sender.aiTool", n.Sender.AITool, AITools)),
//	)
//
// The package has no state and is safe for concurrent use.
package validator
