package mbean

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPropertyList indicates an ObjectName property list that cannot be parsed.
	ErrMalformedPropertyList = errors.New("malformed property list")

	// ErrDuplicateChild indicates a child with the same name and kind already exists.
	ErrDuplicateChild = errors.New("duplicate child node")
)

// PropertyListError describes where parsing of a property list failed.
type PropertyListError struct {
	Input  string
	Pos    int
	Reason string
}

func (e *PropertyListError) Error() string {
	return fmt.Sprintf("%s: %s at position %d in %q", ErrMalformedPropertyList, e.Reason, e.Pos, e.Input)
}

func (e *PropertyListError) Unwrap() error {
	return ErrMalformedPropertyList
}

// EntryError reports one listing entry that was dropped while building a tree.
type EntryError struct {
	Domain   string
	PropList string
	Err      error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("skipped %s:%s: %v", e.Domain, e.PropList, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
