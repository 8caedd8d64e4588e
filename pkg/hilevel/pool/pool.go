// Package pool implements the descriptor pool: a schema-free store of named
// values addressed by dot-delimited keys such as
// "metadata.version.lowlevel.essentia". The first segment of a key is its
// namespace.
//
// Writes are permissive and reads are strict. Set accepts any kind for any
// key, even when that changes the kind stored under an existing key; the
// typed getters fail with *TypeMismatchError when the stored kind differs
// from the one requested.
//
// A Pool has a single owner and does no locking.
package pool

import (
	"fmt"
	"slices"
	"strings"
)

// Separator splits a descriptor key into segments.
const Separator = "."

// Pool maps descriptor keys to values and remembers insertion order.
type Pool struct {
	values map[string]Value
	order  []string
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{values: make(map[string]Value)}
}

// Len returns the number of descriptors.
func (p *Pool) Len() int { return len(p.values) }

// Has reports whether key is present.
func (p *Pool) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Set inserts v under key, overwriting any existing value. An overwritten
// key keeps its original position in enumeration order.
func (p *Pool) Set(key string, v Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !v.IsValid() {
		return fmt.Errorf("%w under %q", ErrInvalidValue, key)
	}
	if _, ok := p.values[key]; !ok {
		p.order = append(p.order, key)
	}
	p.values[key] = v.clone()
	return nil
}

// Add appends v to the collection stored under key. Unlike Set it never
// replaces what is there:
//
//	absent + Real    -> Reals{v}
//	absent + String  -> Strings{v}
//	absent + Reals   -> RealMatrix{v}
//	Reals + Real, Strings + String, RealMatrix + Reals -> appended
//
// Any other combination fails with *TypeMismatchError.
func (p *Pool) Add(key string, v Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	cur, ok := p.values[key]
	if !ok {
		switch v.kind {
		case KindReal:
			return p.Set(key, Reals(v.r))
		case KindString:
			return p.Set(key, Strings(v.s))
		case KindReals:
			return p.Set(key, RealMatrix([][]float64{v.rs}))
		default:
			return &TypeMismatchError{Key: key, Want: KindReal, Got: v.kind}
		}
	}

	switch {
	case cur.kind == KindReals && v.kind == KindReal:
		cur.rs = append(slices.Clone(cur.rs), v.r)
	case cur.kind == KindStrings && v.kind == KindString:
		cur.ss = append(slices.Clone(cur.ss), v.s)
	case cur.kind == KindRealMatrix && v.kind == KindReals:
		cur.m = append(cloneMatrix(cur.m), slices.Clone(v.rs))
	default:
		return &TypeMismatchError{Key: key, Want: elementKind(cur.kind), Got: v.kind}
	}
	p.values[key] = cur
	return nil
}

// Value returns a copy of the value stored under key.
func (p *Pool) Value(key string) (Value, error) {
	v, ok := p.values[key]
	if !ok {
		return Value{}, &KeyNotFoundError{Key: key}
	}
	return v.clone(), nil
}

// GetReal returns the real number stored under key.
func (p *Pool) GetReal(key string) (float64, error) {
	v, err := p.typed(key, KindReal)
	if err != nil {
		return 0, err
	}
	return v.r, nil
}

// GetReals returns a copy of the real sequence stored under key.
func (p *Pool) GetReals(key string) ([]float64, error) {
	v, err := p.typed(key, KindReals)
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.rs), nil
}

// GetString returns the string stored under key.
func (p *Pool) GetString(key string) (string, error) {
	v, err := p.typed(key, KindString)
	if err != nil {
		return "", err
	}
	return v.s, nil
}

// GetStrings returns a copy of the string sequence stored under key.
func (p *Pool) GetStrings(key string) ([]string, error) {
	v, err := p.typed(key, KindStrings)
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.ss), nil
}

// GetRealMatrix returns a copy of the matrix stored under key.
func (p *Pool) GetRealMatrix(key string) ([][]float64, error) {
	v, err := p.typed(key, KindRealMatrix)
	if err != nil {
		return nil, err
	}
	return cloneMatrix(v.m), nil
}

func (p *Pool) typed(key string, want Kind) (Value, error) {
	v, ok := p.values[key]
	if !ok {
		return Value{}, &KeyNotFoundError{Key: key}
	}
	if v.kind != want {
		return Value{}, &TypeMismatchError{Key: key, Want: want, Got: v.kind}
	}
	return v, nil
}

// Remove deletes a single key. Removing an absent key is an error.
func (p *Pool) Remove(key string) error {
	if _, ok := p.values[key]; !ok {
		return &KeyNotFoundError{Key: key}
	}
	delete(p.values, key)
	p.order = slices.DeleteFunc(p.order, func(k string) bool { return k == key })
	return nil
}

// RemoveNamespace deletes every key under prefix and returns how many were
// removed. The pool is never observed half-cleaned: the key set and the
// order list are rebuilt in one pass.
func (p *Pool) RemoveNamespace(prefix string) int {
	n := 0
	p.order = slices.DeleteFunc(p.order, func(k string) bool {
		if !underPrefix(k, prefix) {
			return false
		}
		delete(p.values, k)
		n++
		return true
	})
	return n
}

// DescriptorNames returns the keys under prefix in insertion order. Prefixes
// match whole segments: "meta" does not match "metadata.x". An empty prefix
// returns every key.
func (p *Pool) DescriptorNames(prefix string) []string {
	out := make([]string, 0)
	for _, k := range p.order {
		if underPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// Namespaces returns the distinct first segments in first-seen order.
func (p *Pool) Namespaces() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range p.order {
		ns := Namespace(k)
		if _, ok := seen[ns]; ok {
			continue
		}
		seen[ns] = struct{}{}
		out = append(out, ns)
	}
	return out
}

// Clone returns a deep copy of p.
func (p *Pool) Clone() *Pool {
	c := &Pool{
		values: make(map[string]Value, len(p.values)),
		order:  slices.Clone(p.order),
	}
	for k, v := range p.values {
		c.values[k] = v.clone()
	}
	return c
}

// Namespace returns the first segment of key.
func Namespace(key string) string {
	ns, _, _ := strings.Cut(key, Separator)
	return ns
}

// Join builds a key from segments.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

func underPrefix(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	return len(key) == len(prefix) || strings.HasPrefix(key[len(prefix):], Separator)
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, Separator) {
		if seg == "" {
			return fmt.Errorf("%w %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func elementKind(k Kind) Kind {
	switch k {
	case KindReals:
		return KindReal
	case KindStrings:
		return KindString
	case KindRealMatrix:
		return KindReals
	default:
		return k
	}
}
