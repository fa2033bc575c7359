package plansync

import (
	"fmt"
	"strings"
)

// Policy decides how a conflict is resolved when the caller allows
// automatic resolution.
type Policy string

// Conflict policies. PolicyPlansWins is the default: the markdown is what a
// person edited by hand, so it is not overwritten by a regenerated JSON.
const (
	PolicyPlansWins Policy = "plans_wins"
	PolicyJSONWins  Policy = "json_wins"
	PolicyManual    Policy = "manual"
)

// ParsePolicy converts a config value into a Policy. Empty means default.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPlansWins, nil
	case PolicyPlansWins, PolicyJSONWins, PolicyManual:
		return p, nil
	default:
		return "", fmt.Errorf("plansync: unknown conflict policy %q", s)
	}
}

// Action is the outcome of conflict resolution.
type Action string

// Resolution actions.
const (
	UseJSON  Action = "use_json"
	UsePlans Action = "use_plans"
	Manual   Action = "manual"
)

// ParseAction converts a caller preference ("json", "plans", or an Action
// value) into an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", string(UseJSON):
		return UseJSON, nil
	case "plans", "markdown", "md", string(UsePlans):
		return UsePlans, nil
	default:
		return "", fmt.Errorf("plansync: unknown resolution %q (want json or plans)", s)
	}
}

// Resolution is the decision for one conflicting step. Resolution is
// all-or-nothing per step; fields are never merged.
type Resolution struct {
	Action         Action `json:"action"`
	Message        string `json:"message"`
	NeedsUserInput bool   `json:"needs_user_input"`
}

// Resolver applies a fixed Policy.
type Resolver struct {
	policy Policy
}

// NewResolver creates a Resolver. An empty policy means PolicyPlansWins.
func NewResolver(policy Policy) *Resolver {
	if policy == "" {
		policy = PolicyPlansWins
	}
	return &Resolver{policy: policy}
}

// Policy returns the configured policy.
func (r *Resolver) Policy() Policy { return r.policy }

// ResolveConflicts decides how to settle a conflict on step.
func (r *Resolver) ResolveConflicts(step string) Resolution {
	switch r.policy {
	case PolicyJSONWins:
		return Resolution{
			Action:  UseJSON,
			Message: fmt.Sprintf("%s: both sides changed; regenerating markdown from JSON (json_wins policy)", step),
		}
	case PolicyManual:
		return Resolution{
			Action:         Manual,
			Message:        fmt.Sprintf("%s: both sides changed; choose json or plans to resolve", step),
			NeedsUserInput: true,
		}
	default:
		return Resolution{
			Action:  UsePlans,
			Message: fmt.Sprintf("%s: both sides changed; keeping markdown edits and rewriting JSON", step),
		}
	}
}
