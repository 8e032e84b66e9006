package normalize

import "testing"

func TestEmail(t *testing.T) {
	for in, want := range map[string]string{
		"nurse.kim@clinic.test":        "nurse.kim@clinic.test",
		"  Nurse.Kim@Clinic.TEST\t":    "nurse.kim@clinic.test",
		"ADMIN@CAREXPS.TEST":           "admin@carexps.test",
		"\n":                           "",
		"dr.o'neil+oncall@clinic.test": "dr.o'neil+oncall@clinic.test",
	} {
		if got := Email(in); got != want {
			t.Errorf("Email(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestName(t *testing.T) {
	for in, want := range map[string]string{
		"  Dr. Amara Okafor ": "Dr. Amara Okafor",
		"McAllister":          "McAllister",
		"\t":                  "",
	} {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRole(t *testing.T) {
	for in, want := range map[string]string{
		" Healthcare_Provider ": "healthcare_provider",
		"SUPER_USER":            "super_user",
		"staff":                 "staff",
	} {
		if got := Role(in); got != want {
			t.Errorf("Role(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserID_KeepsCase(t *testing.T) {
	for in, want := range map[string]string{
		" usr_7Fq2 ": "usr_7Fq2",
		"USR_7FQ2":   "USR_7FQ2",
		"":           "",
	} {
		if got := UserID(in); got != want {
			t.Errorf("UserID(%q) = %q, want %q", in, got, want)
		}
	}
}
