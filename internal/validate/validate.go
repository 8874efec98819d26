// Package validate runs declarative, ordered rule chains over submitted
// form fields. Fields are processed first to last and each field's rules
// run in declared order; the first failing rule decides the error, so the
// user always sees exactly one message per submission.
package validate

import "context"

// Form provides access to submitted field values. Rules that compare
// sibling fields read them through this interface.
type Form interface {
	Value(name string) string
}

// FormFunc adapts a lookup function to the Form interface.
type FormFunc func(name string) string

// Value implements Form.
func (f FormFunc) Value(name string) string { return f(name) }

// Rule checks a single field value. The returned error message is shown
// to the user as-is. Rules that need a store lookup receive the request
// context.
type Rule func(ctx context.Context, form Form, value string) error

// Field binds an ordered rule list to a form field. Transform, when set,
// normalizes the raw value before any rule sees it; the normalized value
// is what Chain.Validate reports back.
type Field struct {
	Name      string
	Transform func(string) string
	Rules     []Rule
}

// Chain is an ordered list of field bindings.
type Chain []Field

// Validate evaluates the chain against the form. It returns the
// normalized values of every field and the first rule failure, if any.
// Evaluation short-circuits on the first failure.
func (c Chain) Validate(ctx context.Context, form Form) (map[string]string, error) {
	values := make(map[string]string, len(c))

	// Normalize everything up front so cross-field rules compare
	// normalized values.
	normalized := FormFunc(func(name string) string {
		for _, field := range c {
			if field.Name == name {
				return normalize(field, form.Value(name))
			}
		}
		return form.Value(name)
	})

	for _, field := range c {
		value := normalize(field, form.Value(field.Name))
		values[field.Name] = value
		for _, rule := range field.Rules {
			if err := rule(ctx, normalized, value); err != nil {
				return values, err
			}
		}
	}
	return values, nil
}

func normalize(field Field, value string) string {
	if field.Transform != nil {
		return field.Transform(value)
	}
	return value
}
