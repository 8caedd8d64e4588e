package pool

import (
	"math"
	"slices"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid is the zero Kind.
	KindInvalid Kind = iota
	// KindReal is a single float64.
	KindReal
	// KindReals is an ordered sequence of float64.
	KindReals
	// KindString is a single string.
	KindString
	// KindStrings is an ordered sequence of strings.
	KindStrings
	// KindRealMatrix is a sequence of float64 rows (covariance, frame data).
	KindRealMatrix
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindReals:
		return "reals"
	case KindString:
		return "string"
	case KindStrings:
		return "strings"
	case KindRealMatrix:
		return "real_matrix"
	default:
		return "invalid"
	}
}

// Value is a tagged union of the descriptor types a Pool can hold.
//
// Values own their storage: constructors and accessors copy slices so a
// caller can never alias what is stored in a pool.
type Value struct {
	kind Kind
	r    float64
	rs   []float64
	s    string
	ss   []string
	m    [][]float64
}

// Real returns a Value holding a single real number.
func Real(f float64) Value { return Value{kind: KindReal, r: f} }

// Reals returns a Value holding a copy of fs.
func Reals(fs ...float64) Value {
	if fs == nil {
		fs = []float64{}
	}
	return Value{kind: KindReals, rs: slices.Clone(fs)}
}

// String returns a Value holding s.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Strings returns a Value holding a copy of ss.
func Strings(ss ...string) Value {
	if ss == nil {
		ss = []string{}
	}
	return Value{kind: KindStrings, ss: slices.Clone(ss)}
}

// RealMatrix returns a Value holding a deep copy of rows.
func RealMatrix(rows [][]float64) Value {
	return Value{kind: KindRealMatrix, m: cloneMatrix(rows)}
}

// Kind reports the stored kind.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsReal returns the real number if Kind is KindReal.
func (v Value) AsReal() (float64, bool) {
	if v.kind != KindReal {
		return 0, false
	}
	return v.r, true
}

// AsReals returns a copy of the sequence if Kind is KindReals.
func (v Value) AsReals() ([]float64, bool) {
	if v.kind != KindReals {
		return nil, false
	}
	return slices.Clone(v.rs), true
}

// AsString returns the string if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsStrings returns a copy of the sequence if Kind is KindStrings.
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindStrings {
		return nil, false
	}
	return slices.Clone(v.ss), true
}

// AsRealMatrix returns a deep copy of the rows if Kind is KindRealMatrix.
func (v Value) AsRealMatrix() ([][]float64, bool) {
	if v.kind != KindRealMatrix {
		return nil, false
	}
	return cloneMatrix(v.m), true
}

// Interface returns the value as a plain Go value (float64, []float64,
// string, []string or [][]float64). Serializers use it for leaves.
func (v Value) Interface() any {
	switch v.kind {
	case KindReal:
		return v.r
	case KindReals:
		return slices.Clone(v.rs)
	case KindString:
		return v.s
	case KindStrings:
		return slices.Clone(v.ss)
	case KindRealMatrix:
		return cloneMatrix(v.m)
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same kind and contents.
// NaN compares equal to NaN so round-trip checks stay meaningful.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindReal:
		return realEqual(v.r, o.r)
	case KindReals:
		return slices.EqualFunc(v.rs, o.rs, realEqual)
	case KindString:
		return v.s == o.s
	case KindStrings:
		return slices.Equal(v.ss, o.ss)
	case KindRealMatrix:
		return slices.EqualFunc(v.m, o.m, func(a, b []float64) bool {
			return slices.EqualFunc(a, b, realEqual)
		})
	default:
		return true
	}
}

// String renders v for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindReal:
		return strconv.FormatFloat(v.r, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindReals:
		return v.kind.String() + "[" + strconv.Itoa(len(v.rs)) + "]"
	case KindStrings:
		return v.kind.String() + "[" + strconv.Itoa(len(v.ss)) + "]"
	case KindRealMatrix:
		return v.kind.String() + "[" + strconv.Itoa(len(v.m)) + "]"
	default:
		return "invalid"
	}
}

func (v Value) clone() Value {
	switch v.kind {
	case KindReals:
		v.rs = slices.Clone(v.rs)
	case KindStrings:
		v.ss = slices.Clone(v.ss)
	case KindRealMatrix:
		v.m = cloneMatrix(v.m)
	}
	return v
}

func realEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func cloneMatrix(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = slices.Clone(row)
		if out[i] == nil {
			out[i] = []float64{}
		}
	}
	return out
}
