package models

// Direction is the outcome of change detection for one step.
type Direction string

// Sync directions.
const (
	JSONToPlans Direction = "json_to_plans"
	PlansToJSON Direction = "plans_to_json"
	NoChange    Direction = "no_change"
	Conflict    Direction = "conflict"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case JSONToPlans, PlansToJSON, NoChange, Conflict:
		return true
	}
	return false
}
