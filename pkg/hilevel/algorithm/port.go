package algorithm

import (
	"fmt"

	"github.com/cognicore/hilevel/pkg/hilevel/pool"
)

// Type is the data type carried by a port.
type Type uint8

const (
	TypeReal Type = iota + 1
	TypeReals
	TypeString
	TypeStrings
	TypeRealMatrix
	TypePool
)

func (t Type) String() string {
	switch t {
	case TypeReal:
		return "real"
	case TypeReals:
		return "reals"
	case TypeString:
		return "string"
	case TypeStrings:
		return "strings"
	case TypeRealMatrix:
		return "real_matrix"
	case TypePool:
		return "pool"
	default:
		return "invalid"
	}
}

// GoType names the Go types a port of type t accepts in direction d.
func (t Type) GoType(d Direction) string {
	var base string
	switch t {
	case TypeReal:
		base = "float64"
	case TypeReals:
		base = "[]float64"
	case TypeString:
		base = "string"
	case TypeStrings:
		base = "[]string"
	case TypeRealMatrix:
		base = "[][]float64"
	case TypePool:
		return "*pool.Pool"
	default:
		return "nothing"
	}
	if d == Input {
		return base + " or *" + base
	}
	return "*" + base
}

// Direction tells inputs from outputs.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Port is a named, typed connection point of an algorithm.
//
// Inputs are bound to a value or a pointer to one; outputs are bound to a
// pointer the algorithm writes through. Pool ports always take *pool.Pool
// and may be bound to the same pool on both sides for in-place work.
type Port struct {
	name        string
	typ         Type
	dir         Direction
	description string
	bound       any
}

func newPort(name string, t Type, d Direction, description string) *Port {
	return &Port{name: name, typ: t, dir: d, description: description}
}

func (p *Port) Name() string { return p.name }
func (p *Port) Type() Type { return p.typ }
func (p *Port) Direction() Direction { return p.dir }
func (p *Port) Description() string { return p.description }
func (p *Port) Bound() bool { return p.bound != nil }

// Set binds v to the port. A value of the wrong Go type fails here with
// *PortTypeError, before anything is computed.
func (p *Port) Set(v any) error {
	if !p.accepts(v) {
		return &PortTypeError{Port: p.name, Direction: p.dir, Want: p.typ, Got: fmt.Sprintf("%T", v)}
	}
	p.bound = v
	return nil
}

func (p *Port) accepts(v any) bool {
	switch p.typ {
	case TypeReal:
		return acceptsValue[float64](v, p.dir)
	case TypeReals:
		return acceptsValue[[]float64](v, p.dir)
	case TypeString:
		return acceptsValue[string](v, p.dir)
	case TypeStrings:
		return acceptsValue[[]string](v, p.dir)
	case TypeRealMatrix:
		return acceptsValue[[][]float64](v, p.dir)
	case TypePool:
		pp, ok := v.(*pool.Pool)
		return ok && pp != nil
	default:
		return false
	}
}

func acceptsValue[T any](v any, d Direction) bool {
	switch x := v.(type) {
	case *T:
		return x != nil
	case T:
		return d == Input
	default:
		return false
	}
}

// Get returns what is bound to p as a T, dereferencing pointers. For pool
// ports use T = *pool.Pool.
func Get[T any](p *Port) (T, error) {
	var zero T
	switch x := p.bound.(type) {
	case nil:
		return zero, fmt.Errorf("%w: %s %q", ErrUnboundPort, p.dir, p.name)
	case T:
		return x, nil
	case *T:
		return *x, nil
	default:
		return zero, &PortTypeError{Port: p.name, Direction: p.dir, Want: p.typ, Got: fmt.Sprintf("%T", p.bound)}
	}
}

// Put writes v through the pointer bound to output port p.
func Put[T any](p *Port, v T) error {
	switch x := p.bound.(type) {
	case nil:
		return fmt.Errorf("%w: %s %q", ErrUnboundPort, p.dir, p.name)
	case *T:
		*x = v
		return nil
	default:
		return &PortTypeError{Port: p.name, Direction: p.dir, Want: p.typ, Got: fmt.Sprintf("%T", p.bound)}
	}
}
