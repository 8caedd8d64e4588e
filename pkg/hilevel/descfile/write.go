package descfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
)

// Stdout is the output path that writes to standard output.
const Stdout = "-"

// lockTimeout bounds how long Write waits for another writer of the same
// destination.
var lockTimeout = 30 * time.Second

// Write serializes p to path.
//
// The destination is replaced atomically: the document is written to a
// temporary file in the same directory and renamed over path while holding
// an advisory lock on path+".lock", which stays next to path. A failed Write leaves any previous file
// untouched, so it can be retried.
func Write(p *pool.Pool, path string, format Format) error {
	if path == Stdout {
		w := bufio.NewWriter(os.Stdout)
		if err := Encode(w, p, format); err != nil {
			return fmt.Errorf("%w: stdout: %w", internalerr.ErrWrite, err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("%w: stdout: %w", internalerr.ErrWrite, err)
		}
		return nil
	}

	// Encode first so a bad pool never touches the filesystem.
	var buf bytes.Buffer
	if err := Encode(&buf, p, format); err != nil {
		return fmt.Errorf("%w: %s: %w", internalerr.ErrWrite, path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create output dir %s: %w", internalerr.ErrWrite, dir, err)
	}

	unlock, err := lockPath(path + ".lock")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", internalerr.ErrWrite, path, err)
	}
	defer unlock()

	if err := replaceFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %s: %w", internalerr.ErrWrite, path, err)
	}
	return nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	var w io.Writer = tmp
	var zw *gzip.Writer
	if isGzip(path) {
		zw = gzip.NewWriter(tmp)
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// lockPath takes the advisory lock at lockFile, polling until lockTimeout.
// The lock file is left in place after unlocking; removing it would let a
// waiter lock the unlinked inode while a new writer locks a fresh file.
func lockPath(lockFile string) (func(), error) {
	l := flock.New(lockFile)
	deadline := time.Now().Add(lockTimeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("cannot acquire lock %s: %w", lockFile, err)
		}
		if locked {
			return func() {
				_ = l.Unlock()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another writer holds %s", lockFile)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Encode writes p to w as one document. Keys become nested mappings in
// insertion order.
func Encode(w io.Writer, p *pool.Pool, format Format) error {
	root, err := p.Tree()
	if err != nil {
		return err
	}
	switch format {
	case JSON:
		return encodeJSON(w, root)
	case YAML:
		return encodeYAML(w, root)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// ---------- JSON ----------

func encodeJSON(w io.Writer, root *pool.Node) error {
	var compact bytes.Buffer
	if err := writeJSONNode(&compact, root, ""); err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "    "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}

func writeJSONNode(buf *bytes.Buffer, n *pool.Node, key string) error {
	if n.IsLeaf() {
		return writeJSONLeaf(buf, *n.Value, key)
	}
	buf.WriteByte('{')
	for i, c := range n.Children {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := writeJSONNode(buf, c, joinKey(key, c.Name)); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeJSONLeaf(buf *bytes.Buffer, v pool.Value, key string) error {
	switch v.Kind() {
	case pool.KindReal:
		f, _ := v.AsReal()
		return writeJSONReal(buf, f, key)
	case pool.KindReals:
		fs, _ := v.AsReals()
		return writeJSONReals(buf, fs, key)
	case pool.KindRealMatrix:
		m, _ := v.AsRealMatrix()
		buf.WriteByte('[')
		for i, row := range m {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONReals(buf, row, key); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Errorf("descriptor %q: %w", key, err)
		}
		buf.Write(b)
		return nil
	}
}

func writeJSONReals(buf *bytes.Buffer, fs []float64, key string) error {
	buf.WriteByte('[')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONReal(buf, f, key); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeJSONReal(buf *bytes.Buffer, f float64, key string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("descriptor %q: %v cannot be written as JSON", key, f)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// ---------- YAML ----------

func encodeYAML(w io.Writer, root *pool.Node) error {
	n, err := yamlNode(root)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(4)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{n}}); err != nil {
		return err
	}
	return enc.Close()
}

func yamlNode(n *pool.Node) (*yaml.Node, error) {
	if n.IsLeaf() {
		out := &yaml.Node{}
		if err := out.Encode(n.Value.Interface()); err != nil {
			return nil, err
		}
		if out.Kind == yaml.SequenceNode && n.Value.Kind() != pool.KindStrings {
			out.Style = yaml.FlowStyle
		}
		return out, nil
	}
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, c := range n.Children {
		v, err := yamlNode(c)
		if err != nil {
			return nil, err
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name}, v)
	}
	return m, nil
}
