package guildconfig

import (
	"errors"
	"testing"

	"warden/internal/schema"
)

const testGuildID = int64(123456789012345678)

func testView(t *testing.T, entries map[string]string) *View {
	t.Helper()
	registry, err := schema.Load()
	if err != nil {
		t.Fatalf("schema.Load() error = %v", err)
	}
	return NewView(registry, testGuildID, entries)
}

func TestGetFallsBackToDefault(t *testing.T) {
	view := testView(t, nil)

	color, err := view.Int("colors.info")
	if err != nil {
		t.Fatalf("Int(colors.info) error = %v", err)
	}
	if color != 0x3498db {
		t.Errorf("Int(colors.info) = %#x, want 0x3498db", color)
	}

	// Entries defaulting to null resolve to the type's zero value
	// through the typed accessors.
	role, err := view.Snowflake("utilities.auto_role")
	if err != nil {
		t.Fatalf("Snowflake(utilities.auto_role) error = %v", err)
	}
	if role != "" {
		t.Errorf("Snowflake(utilities.auto_role) = %q, want empty", role)
	}
}

func TestGetPrefersOverride(t *testing.T) {
	view := testView(t, map[string]string{
		"colors.info":     "0xffffff",
		"phishing.action": "ban",
	})

	color, err := view.Int("colors.info")
	if err != nil {
		t.Fatalf("Int(colors.info) error = %v", err)
	}
	if color != 0xffffff {
		t.Errorf("Int(colors.info) = %#x, want 0xffffff", color)
	}

	action, err := view.String("phishing.action")
	if err != nil {
		t.Fatalf("String(phishing.action) error = %v", err)
	}
	if action != "ban" {
		t.Errorf("String(phishing.action) = %q, want ban", action)
	}

	if !view.IsOverridden("colors.info") {
		t.Error("IsOverridden(colors.info) = false, want true")
	}
	if view.IsOverridden("colors.success") {
		t.Error("IsOverridden(colors.success) = true, want false")
	}
}

func TestGetUnknownKey(t *testing.T) {
	view := testView(t, nil)

	_, err := view.Get("colors.bogus")
	var unknown *UnknownKeyError
	if !errors.As(err, &unknown) {
		t.Fatalf("Get(colors.bogus) error = %v, want UnknownKeyError", err)
	}
	if !IsRecoverable(err) {
		t.Error("IsRecoverable(UnknownKeyError) = false, want true")
	}
}

func TestChildNavigation(t *testing.T) {
	view := testView(t, map[string]string{"logging.log.messages": "false"})

	logging, err := view.Child("logging")
	if err != nil {
		t.Fatalf("Child(logging) error = %v", err)
	}
	log, err := logging.Child("log")
	if err != nil {
		t.Fatalf("Child(log) error = %v", err)
	}

	// Relative paths resolve against the child's prefix, including the
	// override lookup.
	enabled, err := log.Bool("messages")
	if err != nil {
		t.Fatalf("Bool(messages) error = %v", err)
	}
	if enabled {
		t.Error("Bool(messages) = true, want false from override")
	}

	if log.GuildID() != testGuildID {
		t.Errorf("child GuildID() = %d, want %d", log.GuildID(), testGuildID)
	}

	// Get on a namespace returns a child view for chained access.
	value, err := view.Get("moderation.perms")
	if err != nil {
		t.Fatalf("Get(moderation.perms) error = %v", err)
	}
	if _, ok := value.(*View); !ok {
		t.Fatalf("Get(moderation.perms) = %T, want *View", value)
	}

	// Child on an entry is a NotAnEntryError, not a panic.
	if _, err := view.Child("colors.info"); err == nil {
		t.Error("Child(colors.info) error = nil, want NotAnEntryError")
	}
}

func TestValidate(t *testing.T) {
	view := testView(t, nil)

	tests := []struct {
		name    string
		path    string
		raw     string
		wantErr bool
	}{
		{name: "valid int", path: "colors.info", raw: "0xabcdef"},
		{name: "invalid int", path: "colors.info", raw: "tomato", wantErr: true},
		{name: "valid choice", path: "phishing.action", raw: "kick"},
		{name: "invalid choice", path: "phishing.action", raw: "nuke", wantErr: true},
		{name: "unknown key", path: "colors.bogus", raw: "1", wantErr: true},
		{name: "namespace", path: "colors", raw: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := view.Validate(tt.path, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate(%q, %q) error = nil, want error", tt.path, tt.raw)
				}
				if !IsRecoverable(err) {
					t.Errorf("IsRecoverable(%v) = false, want true", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q, %q) error = %v", tt.path, tt.raw, err)
			}
		})
	}
}

func TestToTreeOverridesOnly(t *testing.T) {
	view := testView(t, map[string]string{
		"colors.info":     "0xffffff",
		"phishing.action": "ban",
	})

	tree, err := view.ToTree(false)
	if err != nil {
		t.Fatalf("ToTree(false) error = %v", err)
	}

	colors, ok := tree["colors"].(map[string]any)
	if !ok {
		t.Fatalf("tree[colors] = %T, want map", tree["colors"])
	}
	if colors["info"] != "0xffffff" {
		t.Errorf("tree[colors][info] = %v, want raw override string", colors["info"])
	}
	if _, ok := colors["success"]; ok {
		t.Error("tree[colors][success] present without override")
	}
}

func TestToTreeWithDefaults(t *testing.T) {
	view := testView(t, nil)

	tree, err := view.ToTree(true)
	if err != nil {
		t.Fatalf("ToTree(true) error = %v", err)
	}

	phishing, ok := tree["phishing"].(map[string]any)
	if !ok {
		t.Fatalf("tree[phishing] = %T, want map", tree["phishing"])
	}
	if phishing["action"] != "ignore" {
		t.Errorf("tree[phishing][action] = %v, want ignore", phishing["action"])
	}

	// Unset entries show up as explicit nulls so exports are complete.
	utilities := tree["utilities"].(map[string]any)
	if value, ok := utilities["auto_role"]; !ok || value != nil {
		t.Errorf("tree[utilities][auto_role] = %v, %v; want nil, true", value, ok)
	}
}

func TestImportTree(t *testing.T) {
	view := testView(t, nil)

	report := view.ImportTree(map[string]any{
		"colors": map[string]any{
			// JSON decoding yields float64; integral values must import.
			"info": float64(0xffffff),
			// Matches the schema default, so persisting it is pointless.
			"success": "0x2ecc71",
		},
		"phishing": map[string]any{
			"action": "nuke",
		},
		"bogus": map[string]any{
			"key": "value",
		},
	})

	if len(report.Added) != 1 || report.Added[0] != "colors.info" {
		t.Errorf("Added = %v, want [colors.info]", report.Added)
	}
	if len(report.Ignored) != 1 || report.Ignored[0] != "colors.success" {
		t.Errorf("Ignored = %v, want [colors.success]", report.Ignored)
	}
	if len(report.Invalid) != 2 {
		t.Errorf("Invalid = %v, want [bogus.key phishing.action]", report.Invalid)
	}

	if report.Overrides["colors.info"] != "16777215" {
		t.Errorf("Overrides[colors.info] = %q, want 16777215", report.Overrides["colors.info"])
	}
	if _, ok := report.Overrides["colors.success"]; ok {
		t.Error("Overrides contains an ignored key")
	}
}

func TestImportTreeNullLeavesUnset(t *testing.T) {
	view := testView(t, nil)

	report := view.ImportTree(map[string]any{
		"utilities": map[string]any{
			"auto_role": nil,
		},
	})

	if len(report.Added) != 0 {
		t.Errorf("Added = %v, want empty", report.Added)
	}
	if len(report.Ignored) != 1 || report.Ignored[0] != "utilities.auto_role" {
		t.Errorf("Ignored = %v, want [utilities.auto_role]", report.Ignored)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	source := testView(t, map[string]string{
		"colors.info":          "0xffffff",
		"logging.log.messages": "false",
		"phishing.action":      "ban",
	})

	tree, err := source.ToTree(false)
	if err != nil {
		t.Fatalf("ToTree(false) error = %v", err)
	}

	report := testView(t, nil).ImportTree(tree)
	if len(report.Invalid) != 0 {
		t.Fatalf("round-trip Invalid = %v, want empty", report.Invalid)
	}
	if len(report.Added) != 3 {
		t.Fatalf("round-trip Added = %v, want 3 keys", report.Added)
	}
	for key, raw := range map[string]string{
		"colors.info":          "0xffffff",
		"logging.log.messages": "false",
		"phishing.action":      "ban",
	} {
		if report.Overrides[key] != raw {
			t.Errorf("Overrides[%s] = %q, want %q", key, report.Overrides[key], raw)
		}
	}
}
