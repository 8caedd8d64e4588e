package pool

import "strings"

// Node is one level of the nested view of a pool. A node is either a leaf
// (Value set, no children) or a branch (children in first-seen order).
type Node struct {
	Name     string
	Value    *Value
	Children []*Node

	index map[string]*Node
}

// IsLeaf reports whether n carries a value.
func (n *Node) IsLeaf() bool { return n.Value != nil }

// Child returns the direct child called name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.index[name]
	return c, ok
}

func (n *Node) child(name string) *Node {
	if c, ok := n.index[name]; ok {
		return c
	}
	if n.index == nil {
		n.index = make(map[string]*Node)
	}
	c := &Node{Name: name}
	n.index[name] = c
	n.Children = append(n.Children, c)
	return c
}

// Tree returns the pool as a nested tree rooted at an unnamed branch.
// Sibling order follows the insertion order of the first key that
// introduced each segment. A key that is both a leaf and a prefix of
// another key fails with *StructureError.
func (p *Pool) Tree() (*Node, error) {
	root := &Node{}
	for _, key := range p.order {
		segs := strings.Split(key, Separator)
		n := root
		for i, seg := range segs {
			n = n.child(seg)
			if n.IsLeaf() && i < len(segs)-1 {
				return nil, &StructureError{Key: key, Parent: Join(segs[:i+1]...)}
			}
		}
		if len(n.Children) > 0 {
			return nil, &StructureError{Key: firstLeaf(n, key), Parent: key}
		}
		v := p.values[key].clone()
		n.Value = &v
	}
	return root, nil
}

func firstLeaf(n *Node, prefix string) string {
	for len(n.Children) > 0 {
		n = n.Children[0]
		prefix = prefix + Separator + n.Name
	}
	return prefix
}
