// Package guildconfig resolves per-guild configuration values: the
// guild's persisted overrides layered over the schema defaults, with
// typed coercion on read.
package guildconfig

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"warden/internal/schema"
)

// View is an immutable per-request snapshot of a guild's
// configuration. It is built from the guild's current override set on
// every command invocation and navigated by dotted path; descending
// into a namespace yields a new View sharing the same entries with a
// deeper prefix.
type View struct {
	registry *schema.Registry
	guildID  int64
	entries  map[string]string
	prefix   string
}

// NewView builds a view over the given override set.
func NewView(registry *schema.Registry, guildID int64, entries map[string]string) *View {
	if entries == nil {
		entries = map[string]string{}
	}
	return &View{registry: registry, guildID: guildID, entries: entries}
}

// GuildID returns the guild this view belongs to.
func (v *View) GuildID() int64 {
	return v.guildID
}

// abs joins a path with the view's prefix.
func (v *View) abs(path string) string {
	if v.prefix == "" {
		return path
	}
	if path == "" {
		return v.prefix
	}
	return v.prefix + "." + path
}

// Get resolves a path relative to the view. For an entry it returns
// the coerced override, or the coerced default if no override exists.
// For a namespace it returns a child *View for chained navigation.
func (v *View) Get(path string) (any, error) {
	full := v.abs(path)

	node := v.registry.Resolve(full)
	if node == nil {
		return nil, &UnknownKeyError{Path: full}
	}

	if !node.IsLeaf() {
		return &View{registry: v.registry, guildID: v.guildID, entries: v.entries, prefix: full}, nil
	}

	raw := node.Default
	if override, ok := v.entries[full]; ok {
		raw = &override
	}

	return Coerce(raw, full, node)
}

// Child navigates into a namespace. It fails when the path names an
// entry or nothing at all.
func (v *View) Child(path string) (*View, error) {
	value, err := v.Get(path)
	if err != nil {
		return nil, err
	}

	child, ok := value.(*View)
	if !ok {
		return nil, &NotAnEntryError{Path: v.abs(path)}
	}
	return child, nil
}

// Validate coerces a user-submitted raw value against the entry at
// path without persisting anything. It surfaces UnknownKeyError,
// InvalidValueError and UnknownTypeError for the command layer to
// render; persistence stays the caller's job.
func (v *View) Validate(path, raw string) (any, error) {
	full := v.abs(path)

	node := v.registry.Resolve(full)
	if node == nil {
		return nil, &UnknownKeyError{Path: full}
	}
	if !node.IsLeaf() {
		return nil, &NotAnEntryError{Path: full}
	}

	return Coerce(&raw, full, node)
}

// IsOverridden reports whether the guild stores an override for path.
func (v *View) IsOverridden(path string) bool {
	_, ok := v.entries[v.abs(path)]
	return ok
}

// Default returns the schema default for the entry at path, or nil.
func (v *View) Default(path string) (*string, error) {
	full := v.abs(path)

	node := v.registry.Resolve(full)
	if node == nil {
		return nil, &UnknownKeyError{Path: full}
	}
	if !node.IsLeaf() {
		return nil, &NotAnEntryError{Path: full}
	}
	return node.Default, nil
}

// Typed accessors. Absence coerces to the zero value so call sites can
// gate behavior with a plain truthiness check, the way nearly every
// consumer does.

func (v *View) Int(path string) (int64, error) {
	value, err := v.Get(path)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	parsed, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("entry '%s' is not an integer", v.abs(path))
	}
	return parsed, nil
}

func (v *View) Bool(path string) (bool, error) {
	value, err := v.Get(path)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}
	parsed, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("entry '%s' is not a boolean", v.abs(path))
	}
	return parsed, nil
}

func (v *View) String(path string) (string, error) {
	value, err := v.Get(path)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	parsed, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("entry '%s' is not a string", v.abs(path))
	}
	return parsed, nil
}

// Snowflake returns a role or channel reference formatted the way the
// Discord SDK expects, or "" when unset.
func (v *View) Snowflake(path string) (string, error) {
	value, err := v.Get(path)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	parsed, ok := value.(int64)
	if !ok {
		return "", fmt.Errorf("entry '%s' is not a Discord ID", v.abs(path))
	}
	return strconv.FormatInt(parsed, 10), nil
}

// Permission returns a permission bit, or 0 when unset.
func (v *View) Permission(path string) (int64, error) {
	return v.Int(path)
}

// ToTree exports the configuration subtree under the view's prefix as
// a nested map of raw (pre-coercion) strings, preserving round-trip
// fidelity. Entries without an override are omitted unless
// includeDefaults is set.
func (v *View) ToTree(includeDefaults bool) (map[string]any, error) {
	node := v.registry.Resolve(v.prefix)
	if node == nil || node.IsLeaf() {
		return nil, &UnknownKeyError{Path: v.prefix}
	}
	return v.subtree(v.prefix, node, includeDefaults), nil
}

func (v *View) subtree(path string, node *schema.Node, includeDefaults bool) map[string]any {
	tree := map[string]any{}

	for key, child := range node.Children {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}

		if child.IsLeaf() {
			if override, ok := v.entries[childPath]; ok {
				tree[key] = override
			} else if includeDefaults {
				if child.Default != nil {
					tree[key] = *child.Default
				} else {
					tree[key] = nil
				}
			}
			continue
		}

		tree[key] = v.subtree(childPath, child, includeDefaults)
	}

	return tree
}

// ImportReport is the outcome of a tree import: which keys would be
// persisted, which were skipped for matching the schema default, and
// which were rejected. Overrides holds the entries the caller should
// persist for the added keys.
type ImportReport struct {
	Added   []string
	Ignored []string
	Invalid []string

	Overrides map[string]string
}

// ImportTree validates a nested mapping against the schema. Keys
// absent from the schema or failing coercion count as invalid; values
// equal to the schema default are ignored rather than persisted; the
// rest are added. Nothing is persisted here.
func (v *View) ImportTree(tree map[string]any) *ImportReport {
	report := &ImportReport{Overrides: map[string]string{}}
	v.importNode(v.prefix, tree, report)

	sort.Strings(report.Added)
	sort.Strings(report.Ignored)
	sort.Strings(report.Invalid)
	return report
}

func (v *View) importNode(path string, tree map[string]any, report *ImportReport) {
	for key, value := range tree {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}

		node := v.registry.Resolve(childPath)
		if node == nil {
			report.Invalid = append(report.Invalid, childPath)
			continue
		}

		if nested, ok := value.(map[string]any); ok {
			if node.IsLeaf() {
				report.Invalid = append(report.Invalid, childPath)
				continue
			}
			v.importNode(childPath, nested, report)
			continue
		}

		if !node.IsLeaf() {
			report.Invalid = append(report.Invalid, childPath)
			continue
		}

		if value == nil {
			// A null import can only mean "leave unset"; that is the
			// default already.
			report.Ignored = append(report.Ignored, childPath)
			continue
		}

		raw := rawString(value)
		if _, err := Coerce(&raw, childPath, node); err != nil {
			report.Invalid = append(report.Invalid, childPath)
			continue
		}

		if node.Default != nil && raw == *node.Default {
			report.Ignored = append(report.Ignored, childPath)
			continue
		}

		report.Added = append(report.Added, childPath)
		report.Overrides[childPath] = raw
	}
}

// rawString renders an imported scalar back to the stored string form.
// JSON numbers arrive as float64; integral ones must not pick up a
// decimal point.
func rawString(value any) string {
	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprintf("%v", value)
}

// IsRecoverable reports whether an error from this package is a
// user-input problem safe to show verbatim, as opposed to a schema
// bug.
func IsRecoverable(err error) bool {
	var unknownKey *UnknownKeyError
	var invalidValue *InvalidValueError
	var notAnEntry *NotAnEntryError
	return errors.As(err, &unknownKey) || errors.As(err, &invalidValue) || errors.As(err, &notAnEntry)
}
