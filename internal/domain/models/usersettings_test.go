package models

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMergeSettings_NestedKeysMergeFieldByField(t *testing.T) {
	base := SettingsDoc{
		SettingTheme:         "light",
		SettingNotifications: map[string]any{"email": true, "sms": false},
	}
	incoming := SettingsDoc{
		SettingNotifications: map[string]any{"sms": true},
	}

	got := MergeSettings(base, incoming)

	n := got.Object(SettingNotifications)
	if n["email"] != true {
		t.Errorf("notifications.email = %v, want true", n["email"])
	}
	if n["sms"] != true {
		t.Errorf("notifications.sms = %v, want true", n["sms"])
	}
	if got[SettingTheme] != "light" {
		t.Errorf("theme = %v, want light", got[SettingTheme])
	}
}

func TestMergeSettings_TopLevelReplaced(t *testing.T) {
	base := SettingsDoc{"custom": map[string]any{"a": 1, "b": 2}}
	got := MergeSettings(base, SettingsDoc{"custom": map[string]any{"a": 3}})

	custom := got.Object("custom")
	if _, ok := custom["b"]; ok {
		t.Error("non-nested key should be replaced whole, but b survived")
	}
	if custom["a"] != 3 {
		t.Errorf("custom.a = %v, want 3", custom["a"])
	}
}

func TestMergeSettings_DoesNotModifyInputs(t *testing.T) {
	base := DefaultSettings()
	incoming := SettingsDoc{SettingNotifications: map[string]any{"sms": true}}

	_ = MergeSettings(base, incoming)

	if base.Object(SettingNotifications)["sms"] != false {
		t.Error("MergeSettings modified base")
	}
}

func TestSettingsDoc_CloneFlattensBSON(t *testing.T) {
	doc := SettingsDoc{
		SettingDashboardLayout: primitive.D{{Key: "widgets", Value: primitive.A{"calls"}}},
	}

	out := doc.Clone()

	layout, ok := out[SettingDashboardLayout].(map[string]any)
	if !ok {
		t.Fatalf("dashboard_layout type = %T, want map[string]any", out[SettingDashboardLayout])
	}
	widgets, ok := layout["widgets"].([]any)
	if !ok || len(widgets) != 1 || widgets[0] != "calls" {
		t.Errorf("widgets = %#v, want [calls]", layout["widgets"])
	}
}

func TestLoginStats_IsLockedAt(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	s := LoginStats{LockoutUntil: &until}

	if !s.IsLockedAt(now) {
		t.Error("expected locked before LockoutUntil")
	}
	if s.IsLockedAt(until) {
		t.Error("expected unlocked at LockoutUntil")
	}
	if (LoginStats{}).IsLockedAt(now) {
		t.Error("zero stats should not be locked")
	}
}
