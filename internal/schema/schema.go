// Package schema holds the static definition of every per-guild
// configuration entry: its type, default value and, for choice
// entries, the allowed values.
//
// The definition is embedded at build time and parsed once at startup
// into an immutable tree. A node either carries a type (entry) or
// children (namespace), never both.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed definition.yaml
var definitionYAML []byte

// Entry types understood by the coercion layer.
const (
	TypeInt        = "int"
	TypeBool       = "bool"
	TypeString     = "str"
	TypeRole       = "discord_role"
	TypeChannel    = "discord_channel"
	TypePermission = "discord_permission"
	TypeChoice     = "choice"
)

// Node is a single node of the definition tree.
type Node struct {
	// Type is empty for namespace nodes.
	Type string
	// Default is nil when the entry has no default (unset).
	Default *string
	// Choices is only populated for choice entries.
	Choices []string

	Children map[string]*Node
}

// IsLeaf reports whether the node is a configuration entry rather
// than a namespace.
func (n *Node) IsLeaf() bool {
	return n.Type != ""
}

// HasChoice reports whether value is one of the allowed choices.
func (n *Node) HasChoice(value string) bool {
	for _, choice := range n.Choices {
		if choice == value {
			return true
		}
	}
	return false
}

// Registry is the parsed definition tree. It is read-only after Load.
type Registry struct {
	root *Node
}

// Load parses the embedded definition. It is meant to run once at
// process start; a malformed definition makes the process unable to
// start.
func Load() (*Registry, error) {
	return load(definitionYAML)
}

func load(source []byte) (*Registry, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}

	root, err := buildNode("", raw)
	if err != nil {
		return nil, err
	}

	return &Registry{root: root}, nil
}

func buildNode(path string, raw map[string]any) (*Node, error) {
	if _, ok := raw["type"]; ok {
		return buildLeaf(path, raw)
	}

	node := &Node{Children: make(map[string]*Node, len(raw))}
	for key, value := range raw {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}

		childMap, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("definition node %q is not a mapping", childPath)
		}

		child, err := buildNode(childPath, childMap)
		if err != nil {
			return nil, err
		}
		node.Children[key] = child
	}

	return node, nil
}

func buildLeaf(path string, raw map[string]any) (*Node, error) {
	node := &Node{}

	for key, value := range raw {
		switch key {
		case "type":
			typeName, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("definition entry %q has a non-string type", path)
			}
			node.Type = typeName
		case "default":
			if value == nil {
				continue
			}
			// YAML scalars like `true` or bare ints arrive typed;
			// entries store raw strings, so normalize here.
			node.Default = stringPtr(fmt.Sprintf("%v", value))
		case "choices":
			list, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("definition entry %q has malformed choices", path)
			}
			for _, choice := range list {
				node.Choices = append(node.Choices, fmt.Sprintf("%v", choice))
			}
		default:
			// An entry holding nested nodes would be both leaf and
			// namespace, which the data model forbids.
			return nil, fmt.Errorf("definition entry %q mixes type with child %q", path, key)
		}
	}

	if node.Type == TypeChoice && len(node.Choices) == 0 {
		return nil, fmt.Errorf("choice entry %q has no choices", path)
	}

	return node, nil
}

// Resolve walks the dot-delimited path and returns the node it names,
// or nil if any segment is absent. Unknown paths are a normal outcome
// for user-supplied keys; callers must check for nil. The empty path
// resolves to the root.
func (r *Registry) Resolve(path string) *Node {
	node := r.root
	if path == "" {
		return node
	}

	for _, segment := range strings.Split(path, ".") {
		if node.Children == nil {
			return nil
		}
		child, ok := node.Children[segment]
		if !ok {
			return nil
		}
		node = child
	}

	return node
}

func stringPtr(s string) *string {
	return &s
}
