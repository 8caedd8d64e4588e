// Package algorithm defines the unit of computation used by the extractor:
// a named algorithm with typed input and output ports and a Compute method,
// plus the Registry that turns an algorithm name and construction
// parameters into a configured instance.
//
// Typical use:
//
//	alg, err := reg.Create("Mean", nil)
//	in, _ := alg.Input("array")
//	out, _ := alg.Output("mean")
//	_ = in.Set([]float64{1, 2, 3, 4})
//	var m float64
//	_ = out.Set(&m)
//	err = alg.Compute() // m == 2.5
package algorithm

import (
	"fmt"
	"slices"
)

// Info is the static identity of an algorithm. It is used for registry
// lookup and diagnostics only.
type Info struct {
	Name        string
	Category    string
	Description string
}

// Algorithm is a unit of computation with typed ports.
//
// Compute reads bound inputs and writes bound outputs. Implementations must
// not keep per-call state outside their ports, so one instance can be reused
// for every file of a batch.
type Algorithm interface {
	Info() Info
	Input(name string) (*Port, error)
	Output(name string) (*Port, error)
	Inputs() []*Port
	Outputs() []*Port
	Compute() error
}

// Cloner is implemented by algorithms whose Compute is reentrant once ports
// are separated. Clone returns an instance sharing all immutable state with
// fresh, unbound ports.
type Cloner interface {
	Clone() Algorithm
}

// Base implements the port bookkeeping of Algorithm. Embed it and declare
// ports in the constructor.
type Base struct {
	info    Info
	inputs  []*Port
	outputs []*Port
}

// NewBase returns a Base with no ports.
func NewBase(info Info) Base {
	return Base{info: info}
}

// Info implements Algorithm.
func (b *Base) Info() Info { return b.info }

// DeclareInput adds an input port and returns it.
func (b *Base) DeclareInput(name string, t Type, description string) *Port {
	p := newPort(name, t, Input, description)
	b.inputs = append(b.inputs, p)
	return p
}

// DeclareOutput adds an output port and returns it.
func (b *Base) DeclareOutput(name string, t Type, description string) *Port {
	p := newPort(name, t, Output, description)
	b.outputs = append(b.outputs, p)
	return p
}

// Input implements Algorithm.
func (b *Base) Input(name string) (*Port, error) {
	return b.lookup(b.inputs, name, Input)
}

// Output implements Algorithm.
func (b *Base) Output(name string) (*Port, error) {
	return b.lookup(b.outputs, name, Output)
}

// Inputs implements Algorithm.
func (b *Base) Inputs() []*Port { return slices.Clone(b.inputs) }

// Outputs implements Algorithm.
func (b *Base) Outputs() []*Port { return slices.Clone(b.outputs) }

// CheckBound returns ErrUnboundPort for the first port that was never set.
func (b *Base) CheckBound() error {
	for _, p := range b.inputs {
		if !p.Bound() {
			return fmt.Errorf("%s: %w: input %q", b.info.Name, ErrUnboundPort, p.name)
		}
	}
	for _, p := range b.outputs {
		if !p.Bound() {
			return fmt.Errorf("%s: %w: output %q", b.info.Name, ErrUnboundPort, p.name)
		}
	}
	return nil
}

func (b *Base) lookup(ports []*Port, name string, d Direction) (*Port, error) {
	for _, p := range ports {
		if p.name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w: %s %q", b.info.Name, ErrUnknownPort, d, name)
}

// Bind sets each named input and output in one call. It stops at the first
// error, which is either an unknown port or a *PortTypeError.
func Bind(alg Algorithm, inputs, outputs map[string]any) error {
	for name, v := range inputs {
		p, err := alg.Input(name)
		if err != nil {
			return err
		}
		if err := p.Set(v); err != nil {
			return fmt.Errorf("%s: %w", alg.Info().Name, err)
		}
	}
	for name, v := range outputs {
		p, err := alg.Output(name)
		if err != nil {
			return err
		}
		if err := p.Set(v); err != nil {
			return fmt.Errorf("%s: %w", alg.Info().Name, err)
		}
	}
	return nil
}
