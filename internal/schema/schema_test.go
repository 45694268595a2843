package schema

import (
	"testing"
)

const testDefinition = `
colors:
  info:
    type: int
    default: "0x3498db"
limits:
  enabled:
    type: bool
    default: "true"
  mode:
    type: choice
    choices: ["strict", "lenient"]
    default: strict
  channel:
    type: discord_channel
    default: null
`

func TestLoadEmbeddedDefinition(t *testing.T) {
	registry, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Spot-check entries the rest of the bot depends on.
	paths := []string{
		"colors.info",
		"config.perms.discord",
		"moderation.perms.role",
		"logging.channels.moderation",
		"phishing.action",
		"utilities.auto_role",
	}
	for _, path := range paths {
		node := registry.Resolve(path)
		if node == nil {
			t.Errorf("Resolve(%q) = nil, want entry", path)
			continue
		}
		if !node.IsLeaf() {
			t.Errorf("Resolve(%q) is a namespace, want entry", path)
		}
	}
}

func TestResolve(t *testing.T) {
	registry, err := load([]byte(testDefinition))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	tests := []struct {
		name     string
		path     string
		wantNil  bool
		wantLeaf bool
	}{
		{name: "entry", path: "colors.info", wantLeaf: true},
		{name: "namespace", path: "limits", wantLeaf: false},
		{name: "root", path: "", wantLeaf: false},
		{name: "unknown key", path: "colors.bogus", wantNil: true},
		{name: "unknown namespace", path: "bogus.info", wantNil: true},
		{name: "descend through entry", path: "colors.info.deeper", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := registry.Resolve(tt.path)
			if tt.wantNil {
				if node != nil {
					t.Fatalf("Resolve(%q) = %+v, want nil", tt.path, node)
				}
				return
			}
			if node == nil {
				t.Fatalf("Resolve(%q) = nil, want node", tt.path)
			}
			if node.IsLeaf() != tt.wantLeaf {
				t.Errorf("Resolve(%q).IsLeaf() = %v, want %v", tt.path, node.IsLeaf(), tt.wantLeaf)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	registry, err := load([]byte(testDefinition))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	info := registry.Resolve("colors.info")
	if info.Default == nil || *info.Default != "0x3498db" {
		t.Errorf("colors.info default = %v, want 0x3498db", info.Default)
	}

	// A null default stays nil rather than becoming the string "<nil>".
	channel := registry.Resolve("limits.channel")
	if channel.Default != nil {
		t.Errorf("limits.channel default = %q, want nil", *channel.Default)
	}

	mode := registry.Resolve("limits.mode")
	if !mode.HasChoice("strict") || mode.HasChoice("bogus") {
		t.Errorf("limits.mode choices = %v, want [strict lenient]", mode.Choices)
	}
}

func TestLoadRejectsMalformedDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{
			name: "entry with children",
			source: `
limits:
  type: int
  extra:
    type: bool
`,
		},
		{
			name: "choice without choices",
			source: `
mode:
  type: choice
  default: strict
`,
		},
		{
			name: "scalar where node expected",
			source: `
limits: 42
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load([]byte(tt.source)); err == nil {
				t.Error("load() error = nil, want error")
			}
		})
	}
}
