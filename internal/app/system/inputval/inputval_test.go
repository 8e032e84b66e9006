package inputval

import "testing"

func TestIsValidClock(t *testing.T) {
	tests := map[string]bool{
		"00:00":    true,
		"07:45":    true,
		"22:00":    true,
		"23:59":    true,
		"":         false,
		"7:45":     false,
		"24:00":    false,
		"18:61":    false,
		"22:00:00": false,
		"10pm":     false,
		" 22:00":   false,
	}
	for in, want := range tests {
		if got := IsValidClock(in); got != want {
			t.Errorf("IsValidClock(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	tests := map[string]bool{
		"super_user":          true,
		"admin":               true,
		"healthcare_provider": true,
		"staff":               true,
		" Staff ":             true,
		"ADMIN":               true,
		"patient":             false,
		"":                    false,
		"healthcare provider": false,
	}
	for in, want := range tests {
		if got := IsValidRole(in); got != want {
			t.Errorf("IsValidRole(%q) = %v, want %v", in, got, want)
		}
	}
}

type newUser struct {
	Name  string `json:"name" validate:"required,max=20" label:"Name"`
	Email string `json:"email" validate:"required,email" label:"Email"`
	Role  string `json:"role" validate:"required,role" label:"Role"`
}

func TestValidate_NewUser(t *testing.T) {
	tests := []struct {
		name  string
		in    newUser
		field string
		msg   string
	}{
		{"valid", newUser{"Dr. Okafor", "okafor@clinic.test", "healthcare_provider"}, "", ""},
		{"missing name", newUser{"", "okafor@clinic.test", "staff"}, "name", "Name is required."},
		{"long name", newUser{"Dr. Adaeze Okafor-Whitfield", "okafor@clinic.test", "staff"}, "name", "Name must be at most 20 characters."},
		{"bad email", newUser{"Okafor", "okafor at clinic", "staff"}, "email", "A valid email address is required."},
		{"unknown role", newUser{"Okafor", "okafor@clinic.test", "patient"}, "role",
			"Role must be one of: super_user, admin, healthcare_provider, staff."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.in)
			if tt.msg == "" {
				if res.HasErrors() {
					t.Fatalf("Validate() unexpected error %q", res.First())
				}
				return
			}
			if res.First() != tt.msg {
				t.Errorf("First() = %q, want %q", res.First(), tt.msg)
			}
			if got := res.Fields()[tt.field]; got != tt.msg {
				t.Errorf("Fields()[%q] = %q, want %q", tt.field, got, tt.msg)
			}
		})
	}
}

func TestValidate_Clock(t *testing.T) {
	type quietHours struct {
		Start string `json:"start" validate:"required,clock" label:"Quiet hours start"`
	}

	if res := Validate(&quietHours{Start: "22:00"}); res.HasErrors() {
		t.Errorf("Validate() = %q, want no error", res.First())
	}
	res := Validate(&quietHours{Start: "10pm"})
	if want := "Quiet hours start must be a time in HH:MM format."; res.First() != want {
		t.Errorf("First() = %q, want %q", res.First(), want)
	}
	if res.Problems[0].Rule != "clock" {
		t.Errorf("Rule = %q, want clock", res.Problems[0].Rule)
	}
}

func TestValidate_LabelFallsBackToFieldName(t *testing.T) {
	type deviceInput struct {
		DeviceID string `json:"device_id" validate:"required"`
	}
	res := Validate(deviceInput{})
	if !res.HasErrors() {
		t.Fatal("Validate() empty device_id should fail")
	}
	if got := res.First(); got == " is required." || got == "" {
		t.Errorf("First() = %q, want the field name in the message", got)
	}
}

func TestValidate_NonStruct(t *testing.T) {
	if res := Validate("staff"); res == nil {
		t.Error("Validate(non-struct) returned nil")
	}
}

func TestResult_EmptyAccessors(t *testing.T) {
	var r Result
	if r.HasErrors() || r.First() != "" || len(r.Fields()) != 0 {
		t.Errorf("zero Result should report nothing, got %+v", r)
	}
}
