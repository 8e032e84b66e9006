// Package inputval checks decoded API bodies against `validate` struct tags
// using waffle/pantry/validate, with the carexps rules registered on top.
//
//	type CreateUserInput struct {
//	    Email string `json:"email" validate:"required,email" label:"Email"`
//	    Role  string `json:"role" validate:"required,role" label:"Role"`
//	}
//
// Messages name the field by its `label` tag, falling back to the JSON name.
package inputval

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/dalemusser/carexps/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/validate"
)

// Problem is one failed rule on one field.
type Problem struct {
	Field   string
	Rule    string
	Message string
}

// Result collects the problems of one Validate call. The validator stops at
// the first failing rule per struct, so in practice there is at most one.
type Result struct {
	Problems []Problem
}

func (r *Result) HasErrors() bool { return len(r.Problems) > 0 }

// First is the message shown to API callers.
func (r *Result) First() string {
	if len(r.Problems) == 0 {
		return ""
	}
	return r.Problems[0].Message
}

// Fields maps field name to message.
func (r *Result) Fields() map[string]string {
	out := make(map[string]string, len(r.Problems))
	for _, p := range r.Problems {
		if _, seen := out[p.Field]; !seen {
			out[p.Field] = p.Message
		}
	}
	return out
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsValidClock reports whether s is a 24 hour HH:MM time such as a
// quiet-hours bound.
func IsValidClock(s string) bool { return clockPattern.MatchString(s) }

// IsValidRole accepts any models role, ignoring case and surrounding space.
func IsValidRole(role string) bool {
	return models.IsValidRole(strings.ToLower(strings.TrimSpace(role)))
}

// customRules are the string rules added to pantry/validate.
var customRules = map[string]func(string) bool{
	"role":  IsValidRole,
	"clock": IsValidClock,
}

var (
	once sync.Once
	v    *validate.Validator
)

func validator() *validate.Validator {
	once.Do(func() {
		v = validate.New(validate.WithStopOnFirstError())
		for name, check := range customRules {
			check := check
			v.RegisterRuleFunc(name, func(value any) bool {
				s, ok := value.(string)
				return ok && check(s)
			}, name)
		}
	})
	return v
}

// Validate runs the tag rules of s (a struct or pointer to one). A non-struct
// yields an empty Result.
func Validate(s any) *Result {
	res := &Result{}
	err := validator().Struct(s)
	if err == nil {
		return res
	}
	errs, ok := err.(validate.Errors)
	if !ok {
		return res
	}

	labels := labelsFor(s)
	for _, e := range errs {
		label := labels[e.Field]
		if label == "" {
			label = e.Field
		}
		res.Problems = append(res.Problems, Problem{
			Field:   e.Field,
			Rule:    e.Rule,
			Message: message(label, e.Rule, e.Param),
		})
	}
	return res
}

// labelCache holds field name to label per struct type.
var labelCache sync.Map

func labelsFor(s any) map[string]string {
	t := reflect.TypeOf(s)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := labelCache.Load(t); ok {
		return cached.(map[string]string)
	}

	labels := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		label := f.Tag.Get("label")
		if label == "" {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		labels[name] = label
	}
	labelCache.Store(t, labels)
	return labels
}

func message(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "email":
		return "A valid email address is required."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "role":
		return label + " must be one of: " + strings.Join(models.AllRoles(), ", ") + "."
	case "clock":
		return label + " must be a time in HH:MM format."
	}
	return label + " is invalid."
}
