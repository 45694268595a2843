package guildconfig

import "fmt"

// UnknownKeyError is returned when a path does not resolve to any
// schema node. It is a normal outcome for user-supplied keys and is
// shown to the user as-is.
type UnknownKeyError struct {
	Path string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("the configuration entry '%s' does not exist", e.Path)
}

// InvalidValueError is returned when a raw value fails coercion or
// choice membership. Shown to the user as-is.
type InvalidValueError struct {
	Path   string
	Raw    string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value '%s' for '%s': %s", e.Raw, e.Path, e.Reason)
}

// UnknownTypeError means the schema declares a type the coercion
// engine does not know. This is a definition-authoring bug, never a
// user error.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown configuration type '%s'", e.Type)
}

// NotAnEntryError is returned when a namespace path is used where an
// entry is required.
type NotAnEntryError struct {
	Path string
}

func (e *NotAnEntryError) Error() string {
	return fmt.Sprintf("'%s' is a configuration section, not an entry", e.Path)
}
