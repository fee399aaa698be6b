package jsonfile

import "fmt"

// AccessError reports a permission or I/O layer fault on the file at Path.
// It signals an environment problem, not a data problem: recovery never
// absorbs it and it always propagates to the caller.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("cannot access %q: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// InvalidDefaultError reports that the configured recovery material is
// unusable: an unserializable default value, a missing or unreadable default
// file, or a default file that does not parse as JSON. Path names the file
// whose default is at fault (the default file when one is configured,
// otherwise the target file).
type InvalidDefaultError struct {
	Path string
	Err  error
}

func (e *InvalidDefaultError) Error() string {
	return fmt.Sprintf("default for %q is not usable: %v", e.Path, e.Err)
}

func (e *InvalidDefaultError) Unwrap() error {
	return e.Err
}

// ParseError reports that the target file's content is not valid JSON. It is
// only returned when recovery is disabled for the operation; with recovery
// enabled, a parse fault triggers default materialization instead.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%q does not contain valid JSON: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
