package algorithm

import (
	"fmt"
	"strconv"
)

// Params are the named construction arguments passed to a Factory, e.g.
// {"svms": []string{"models/mood_happy.yaml"}}.
type Params map[string]any

// GetString returns the string parameter name of algorithm alg.
func (p Params) GetString(alg, name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", &InvalidArgumentError{Algorithm: alg, Param: name, Reason: "required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidArgumentError{Algorithm: alg, Param: name, Reason: fmt.Sprintf("want string, got %T", v)}
	}
	return s, nil
}

// StringOr returns the string parameter name, or def when it is absent.
func (p Params) StringOr(alg, name, def string) (string, error) {
	if _, ok := p[name]; !ok {
		return def, nil
	}
	return p.GetString(alg, name)
}

// GetStrings returns the string list parameter name. A nil or empty list is
// valid; an absent one is not.
func (p Params) GetStrings(alg, name string) ([]string, error) {
	v, ok := p[name]
	if !ok {
		return nil, &InvalidArgumentError{Algorithm: alg, Param: name, Reason: "required"}
	}
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, &InvalidArgumentError{Algorithm: alg, Param: name, Reason: fmt.Sprintf("element %d: want string, got %T", i, e)}
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, &InvalidArgumentError{Algorithm: alg, Param: name, Reason: fmt.Sprintf("want []string, got %T", v)}
	}
}

// GetReal returns the numeric parameter name. Integers and numeric strings
// are accepted.
func (p Params) GetReal(alg, name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, &InvalidArgumentError{Algorithm: alg, Param: name, Reason: "required"}
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, &InvalidArgumentError{Algorithm: alg, Param: name, Reason: "not a number", Cause: err}
		}
		return f, nil
	default:
		return 0, &InvalidArgumentError{Algorithm: alg, Param: name, Reason: fmt.Sprintf("want number, got %T", v)}
	}
}
