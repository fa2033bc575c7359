package schema

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks data against the step's declared fields: non-optional
// fields must be present and non-blank, and every declared field must have
// the declared shape. Undeclared keys are allowed.
func (s *Schema) Validate(step string, data map[string]any) error {
	st, err := s.Step(step)
	if err != nil {
		return err
	}
	keys := make([]*validation.KeyRules, 0, len(st.Fields))
	for _, f := range st.Fields {
		rules := []validation.Rule{validation.By(shapeRule(f))}
		if f.Optional {
			keys = append(keys, validation.Key(f.Name, rules...).Optional())
			continue
		}
		keys = append(keys, validation.Key(f.Name, append([]validation.Rule{validation.Required}, rules...)...))
	}
	return validation.Validate(data, validation.Map(keys...).AllowExtraKeys())
}

func shapeRule(f FieldSpec) validation.RuleFunc {
	return func(value any) error {
		if value == nil {
			return nil
		}
		switch f.Shape {
		case PlainText:
			if _, ok := value.(string); !ok {
				return errors.New("must be a string")
			}
		case StringList:
			list, ok := value.([]any)
			if !ok {
				if _, ok := value.([]string); ok {
					return nil
				}
				return errors.New("must be a list of strings")
			}
			for i, item := range list {
				if _, ok := item.(string); !ok {
					return fmt.Errorf("item %d must be a string", i)
				}
			}
		case Records:
			records, ok := AsRecords(value)
			if !ok {
				return errors.New("must be a list of objects")
			}
			for i, r := range records {
				title, _ := r[f.Record.TitleKey].(string)
				if title == "" {
					return fmt.Errorf("record %d: %s is required", i, f.Record.TitleKey)
				}
			}
		}
		return nil
	}
}
