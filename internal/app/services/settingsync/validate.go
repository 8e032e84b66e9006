package settingsync

import (
	"slices"

	"github.com/dalemusser/carexps/internal/app/system/inputval"
	"github.com/dalemusser/carexps/internal/domain/models"
)

// Session timeout bounds, in minutes.
const (
	MinSessionTimeout = 1
	MaxSessionTimeout = 480
)

// Validation messages.
const (
	MsgInvalidTheme          = "Invalid theme value"
	MsgInvalidSessionTimeout = "Session timeout must be between 1 and 480 minutes"
	MsgInvalidHoursStart     = "Invalid business hours start time format"
	MsgInvalidHoursEnd       = "Invalid business hours end time format"
)

// ValidationResult lists every problem found in a settings document.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Validate checks the fields of settings that have constraints. Absent
// fields are not errors, so partial documents validate.
func Validate(settings models.SettingsDoc) ValidationResult {
	errs := []string{}

	if v, ok := settings[models.SettingTheme]; ok {
		if s, isStr := v.(string); !isStr || !slices.Contains(models.Themes, s) {
			errs = append(errs, MsgInvalidTheme)
		}
	}

	if sec := settings.Object(models.SettingSecurityPreferences); sec != nil {
		if v, ok := sec["session_timeout"]; ok {
			n, isNum := number(v)
			if !isNum || n < MinSessionTimeout || n > MaxSessionTimeout {
				errs = append(errs, MsgInvalidSessionTimeout)
			}
		}
	}

	if comm := settings.Object(models.SettingCommunicationPreferences); comm != nil {
		if hours := models.AsObject(comm["business_hours"]); hours != nil {
			if v, ok := hours["start"]; ok && !isClock(v) {
				errs = append(errs, MsgInvalidHoursStart)
			}
			if v, ok := hours["end"]; ok && !isClock(v) {
				errs = append(errs, MsgInvalidHoursEnd)
			}
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func isClock(v any) bool {
	s, ok := v.(string)
	return ok && inputval.IsValidClock(s)
}

// number converts the numeric types a decoded document can hold.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
