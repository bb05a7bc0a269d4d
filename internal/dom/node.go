package dom

import "strings"

// Attribute names the agent writes into the host page. They are the only
// durable state the agent leaves behind and double as the idempotence and
// self-mutation markers.
const (
	RowRefAttr     = "data-blissful-row"
	ControlAttr    = "data-blissful-control"
	GenerationAttr = "data-blissful-tag"
)

// Static generation tags for agent writes that are not per-pass: toast
// containers and the injected stylesheet. The self-mutation filter treats
// them as agent writes forever.
const (
	StaticToastTag = "blissful-toast"
	StaticStyleTag = "blissful-style"
)

// Node is a point-in-time snapshot of one element in the host page,
// decoded from the in-page serializer. The tree is pruned: only candidate
// rows and their descendants are captured, so classification never walks
// the whole document.
type Node struct {
	Tag      string            `json:"tag"`
	ID       string            `json:"id,omitempty"`
	Classes  []string          `json:"classes,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// Ref returns the stable row reference assigned by the snapshot serializer,
// or "" for nodes that are not candidate rows.
func (n *Node) Ref() string {
	return n.Attr(RowRefAttr)
}

// Attr returns the captured attribute value, or "" when absent.
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// HasClass reports whether the node carries the given CSS class exactly.
func (n *Node) HasClass(name string) bool {
	if n == nil {
		return false
	}
	for _, c := range n.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// HasClassPrefix reports whether any class starts with the given prefix.
// Host SPAs emit hashed class names like "trackTitle-3xQz", so classifier
// heuristics match on prefixes rather than full names.
func (n *Node) HasClassPrefix(prefix string) bool {
	if n == nil {
		return false
	}
	for _, c := range n.Classes {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Find returns the first node (depth-first, including n itself) matching
// the predicate, or nil.
func (n *Node) Find(pred func(*Node) bool) *Node {
	if n == nil {
		return nil
	}
	if pred(n) {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(pred); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every node (depth-first, including n itself) matching
// the predicate.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.walk(func(node *Node) {
		if pred(node) {
			out = append(out, node)
		}
	})
	return out
}

// Rows returns every node in the tree carrying a row reference.
func (n *Node) Rows() []*Node {
	return n.FindAll(func(node *Node) bool { return node.Ref() != "" })
}

// Link returns the first anchor under n whose href starts with prefix.
func (n *Node) Link(prefix string) *Node {
	return n.Find(func(node *Node) bool {
		return node.Tag == "a" && strings.HasPrefix(node.Attr("href"), prefix)
	})
}

func (n *Node) walk(visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		c.walk(visit)
	}
}

// TrimmedText returns the node's captured text with surrounding whitespace
// removed.
func (n *Node) TrimmedText() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text)
}
