package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is matched by every *KeyNotFoundError.
	ErrKeyNotFound = errors.New("descriptor not found")
	// ErrTypeMismatch is matched by every *TypeMismatchError.
	ErrTypeMismatch = errors.New("descriptor type mismatch")
	// ErrInvalidKey is returned for empty keys or keys with empty segments.
	ErrInvalidKey = errors.New("invalid descriptor key")
	// ErrInvalidValue is returned when storing a zero Value.
	ErrInvalidValue = errors.New("invalid descriptor value")
)

// KeyNotFoundError reports a read or remove of an absent key.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("descriptor %q not found", e.Key)
}

func (e *KeyNotFoundError) Unwrap() error { return ErrKeyNotFound }

// TypeMismatchError reports a read (or Add) whose expected kind differs
// from the stored one.
type TypeMismatchError struct {
	Key  string
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("descriptor %q: want %s, got %s", e.Key, e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// StructureError reports a key that is both a leaf and the parent of other
// keys, which cannot be represented as a tree.
type StructureError struct {
	Key    string
	Parent string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("descriptor %q conflicts with leaf %q", e.Key, e.Parent)
}
