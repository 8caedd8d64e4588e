package descfile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
)

// Load reads the descriptor file at path into a new pool.
func Load(path string, format Format) (*pool.Pool, error) {
	p := pool.New()
	if err := LoadInto(path, format, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadInto reads the descriptor file at path into p. On error p may hold
// the descriptors read before the failure.
func LoadInto(path string, format Format, p *pool.Pool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %w", internalerr.ErrLoad, path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isGzip(path) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: cannot decompress %s: %w", internalerr.ErrLoad, path, err)
		}
		defer zr.Close()
		r = zr
	}

	if err := Decode(r, format, p); err != nil {
		return fmt.Errorf("%w: %s: %w", internalerr.ErrLoad, path, err)
	}
	return nil
}

// Decode parses one descriptor document from r into p.
func Decode(r io.Reader, format Format, p *pool.Pool) error {
	switch format {
	case JSON:
		return decodeJSON(r, p)
	case YAML:
		return decodeYAML(r, p)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// ---------- JSON ----------

func decodeJSON(r io.Reader, p *pool.Pool) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("invalid JSON: top level must be an object")
	}
	if err := readJSONObject(dec, "", p); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("invalid JSON: trailing data after top-level object")
	}
	return nil
}

// readJSONObject consumes members up to and including the closing brace.
func readJSONObject(dec *json.Decoder, prefix string, p *pool.Pool) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("invalid JSON: unexpected %v", tok)
		}
		if err := readJSONValue(dec, joinKey(prefix, name), p); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func readJSONValue(dec *json.Decoder, key string, p *pool.Pool) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid JSON at %q: %w", key, err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return readJSONObject(dec, key, p)
		case '[':
			items, err := readJSONArray(dec, key)
			if err != nil {
				return err
			}
			v, err := listValue(key, items)
			if err != nil {
				return err
			}
			return p.Set(key, v)
		}
		return fmt.Errorf("invalid JSON at %q: unexpected %v", key, t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("descriptor %q: %w", key, err)
		}
		return p.Set(key, pool.Real(f))
	case string:
		return p.Set(key, pool.String(t))
	case bool:
		return p.Set(key, pool.Real(boolReal(t)))
	case nil:
		return fmt.Errorf("descriptor %q: null values are not supported", key)
	default:
		return fmt.Errorf("descriptor %q: unexpected %T", key, tok)
	}
}

// readJSONArray consumes elements up to and including the closing bracket.
// Elements come back as float64, string or []any.
func readJSONArray(dec *json.Decoder, key string) ([]any, error) {
	items := make([]any, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON at %q: %w", key, err)
		}
		switch t := tok.(type) {
		case json.Delim:
			if t != '[' {
				return nil, fmt.Errorf("descriptor %q: objects inside lists are not supported", key)
			}
			inner, err := readJSONArray(dec, key)
			if err != nil {
				return nil, err
			}
			items = append(items, inner)
		case json.Number:
			f, err := t.Float64()
			if err != nil {
				return nil, fmt.Errorf("descriptor %q: %w", key, err)
			}
			items = append(items, f)
		case string:
			items = append(items, t)
		case bool:
			items = append(items, boolReal(t))
		default:
			return nil, fmt.Errorf("descriptor %q: unsupported list element %v", key, tok)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON at %q: %w", key, err)
	}
	return items, nil
}

// ---------- YAML ----------

func decodeYAML(r io.Reader, p *pool.Pool) error {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty YAML document")
		}
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return errors.New("invalid YAML: expected a single document")
	}
	root := resolveAlias(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return errors.New("invalid YAML: top level must be a mapping")
	}
	return walkYAMLMapping(root, "", p)
}

func walkYAMLMapping(n *yaml.Node, prefix string, p *pool.Pool) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := joinKey(prefix, n.Content[i].Value)
		v := resolveAlias(n.Content[i+1])
		switch v.Kind {
		case yaml.MappingNode:
			if err := walkYAMLMapping(v, key, p); err != nil {
				return err
			}
		case yaml.SequenceNode:
			items, err := yamlSequence(v, key)
			if err != nil {
				return err
			}
			val, err := listValue(key, items)
			if err != nil {
				return err
			}
			if err := p.Set(key, val); err != nil {
				return err
			}
		case yaml.ScalarNode:
			x, err := yamlScalar(v, key)
			if err != nil {
				return err
			}
			var val pool.Value
			switch s := x.(type) {
			case float64:
				val = pool.Real(s)
			case string:
				val = pool.String(s)
			}
			if err := p.Set(key, val); err != nil {
				return err
			}
		default:
			return fmt.Errorf("descriptor %q: unsupported YAML node at line %d", key, v.Line)
		}
	}
	return nil
}

func yamlSequence(n *yaml.Node, key string) ([]any, error) {
	items := make([]any, 0, len(n.Content))
	for _, c := range n.Content {
		c = resolveAlias(c)
		switch c.Kind {
		case yaml.SequenceNode:
			inner, err := yamlSequence(c, key)
			if err != nil {
				return nil, err
			}
			items = append(items, inner)
		case yaml.ScalarNode:
			x, err := yamlScalar(c, key)
			if err != nil {
				return nil, err
			}
			items = append(items, x)
		default:
			return nil, fmt.Errorf("descriptor %q: mappings inside lists are not supported (line %d)", key, c.Line)
		}
	}
	return items, nil
}

// yamlScalar returns float64 for numbers and booleans, string otherwise.
func yamlScalar(n *yaml.Node, key string) (any, error) {
	switch n.ShortTag() {
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("descriptor %q: %w", key, err)
		}
		return f, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("descriptor %q: %w", key, err)
		}
		return boolReal(b), nil
	case "!!null":
		return nil, fmt.Errorf("descriptor %q: null values are not supported", key)
	default:
		return n.Value, nil
	}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// ---------- shared ----------

// listValue maps a decoded list onto a pool value: numbers -> Reals,
// strings -> Strings, lists of number lists -> RealMatrix. An empty list is
// an empty Reals.
func listValue(key string, items []any) (pool.Value, error) {
	if len(items) == 0 {
		return pool.Reals(), nil
	}
	switch items[0].(type) {
	case float64:
		out := make([]float64, len(items))
		for i, it := range items {
			f, ok := it.(float64)
			if !ok {
				return pool.Value{}, mixedList(key)
			}
			out[i] = f
		}
		return pool.Reals(out...), nil
	case string:
		out := make([]string, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return pool.Value{}, mixedList(key)
			}
			out[i] = s
		}
		return pool.Strings(out...), nil
	case []any:
		rows := make([][]float64, len(items))
		for i, it := range items {
			row, ok := it.([]any)
			if !ok {
				return pool.Value{}, mixedList(key)
			}
			rows[i] = make([]float64, len(row))
			for j, e := range row {
				f, ok := e.(float64)
				if !ok {
					return pool.Value{}, fmt.Errorf("descriptor %q: matrix rows must hold numbers", key)
				}
				rows[i][j] = f
			}
		}
		return pool.RealMatrix(rows), nil
	default:
		return pool.Value{}, mixedList(key)
	}
}

func mixedList(key string) error {
	return fmt.Errorf("descriptor %q: lists must hold only numbers, only strings or only number lists", key)
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + pool.Separator + name
}

func boolReal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
