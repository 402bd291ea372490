package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure reported by this package (and by resolution and
// serialization built on top of it) matches one of these with errors.Is.
var (
	ErrDuplicateName     = errors.New("duplicate name")
	ErrDanglingReference = errors.New("dangling reference")
	ErrCyclicParentage   = errors.New("cyclic parentage")
	ErrUnresolvedEntity  = errors.New("unresolved entity")
	ErrDataLookup        = errors.New("data lookup failure")
	ErrNonFinite         = errors.New("non-finite result")
	ErrInvalidDefinition = errors.New("invalid definition")
)

// Error ties an error kind to the entity it concerns.
type Error struct {
	Kind   error
	Entity string // e.g. `segment "THIGH"`
	Msg    string
	Err    error // underlying cause, if any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Entity != "" {
		s += ": " + e.Entity
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error; msg is formatted with args.
func NewError(kind error, entity string, format string, args ...any) *Error {
	return &Error{Kind: kind, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and entity to cause.
func Wrap(kind error, entity string, cause error) *Error {
	return &Error{Kind: kind, Entity: entity, Err: cause}
}

// Entity helpers keep messages uniform across packages.
func SegmentEntity(name string) string { return fmt.Sprintf("segment %q", name) }
func MarkerEntity(name string) string { return fmt.Sprintf("marker %q", name) }
func ContactEntity(name string) string { return fmt.Sprintf("contact %q", name) }
func MuscleGroupEntity(name string) string { return fmt.Sprintf("muscle group %q", name) }
func MuscleEntity(name string) string { return fmt.Sprintf("muscle %q", name) }
func ViaPointEntity(name string) string { return fmt.Sprintf("via point %q", name) }

func duplicatef(entity, format string, args ...any) error {
	return NewError(ErrDuplicateName, entity, format, args...)
}

func danglingf(entity, format string, args ...any) error {
	return NewError(ErrDanglingReference, entity, format, args...)
}

func invalidf(entity, format string, args ...any) error {
	return NewError(ErrInvalidDefinition, entity, format, args...)
}

func nonFinitef(entity, format string, args ...any) error {
	return NewError(ErrNonFinite, entity, format, args...)
}
