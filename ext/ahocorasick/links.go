package ahocorasick

import (
	"time"

	"gmatch/ext/xlog"

	"github.com/rs/zerolog"
)

// suffix links point each node at the node of its longest proper suffix that
// is also in the trie, the root links to itself. mutations only flag the trie
// dirty, the next link dependent read pays for one full recomputation.

// SuffixLink returns the suffix link of node i, recomputing all links first
// when a mutation left them stale.
func (t *Trie) SuffixLink(i Index) (Index, error) {
	if t.dirty {
		t.rebuild()
	}
	if err := t.ValidateActiveNodeIndex(i); err != nil {
		return Undefined, err
	}
	return t.nodes[i].link, nil
}

// Traverse performs one goto/fail step from current with letter a: the child
// edge when it exists, otherwise the nearest suffix ancestor owning such an
// edge, falling back to the root. It is total over active nodes and never
// returns Undefined.
func (t *Trie) Traverse(current Index, a Letter) (Index, error) {
	if t.dirty {
		t.rebuild()
	}
	if err := t.ValidateActiveNodeIndex(current); err != nil {
		return Undefined, err
	}
	return t.traverse(current, a), nil
}

// TraverseWord folds Traverse over w starting from start.
func (t *Trie) TraverseWord(start Index, w Word) (Index, error) {
	if t.dirty {
		t.rebuild()
	}
	if err := t.ValidateActiveNodeIndex(start); err != nil {
		return Undefined, err
	}
	cur := start
	for _, a := range w {
		cur = t.traverse(cur, a)
	}
	return cur, nil
}

// TraverseString is TraverseWord for byte strings.
func (t *Trie) TraverseString(start Index, s string) (Index, error) {
	return t.TraverseWord(start, StringToWord(s))
}

// traverse assumes current is active and links are valid
func (t *Trie) traverse(current Index, a Letter) Index {
	for {
		if c := t.child(current, a); c != Undefined {
			return c
		}
		if current == Root {
			return Root
		}
		current = t.nodes[current].link
	}
}

// rebuild recomputes every suffix link breadth-first, so a node's link is
// already final before any of its children needs it. children of the root
// always link to the root, deeper nodes follow one goto/fail step from the
// parent's link.
func (t *Trie) rebuild() {
	start := time.Now()

	t.nodes[Root].link = Root
	queue := make([]Index, 1, t.activeCount)
	queue[0] = Root
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for a, c := range t.nodes[cur].children {
			if cur == Root {
				t.nodes[c].link = Root
			} else {
				t.nodes[c].link = t.traverse(t.nodes[cur].link, a)
			}
			queue = append(queue, c)
		}
	}
	t.dirty = false
	t.rebuilds++

	if xlog.Logger().Trace().Enabled() {
		stats := zerolog.Dict().Uint64("allocate", t.allocs).Uint64("recycle", t.recycles).Uint64("release", t.releases).Uint64("rebuild", t.rebuilds)
		xlog.Logger().Trace().Str("log_type", "ahocorasick").Str("op_type", "rebuild").Int("nodes", len(queue)).Dur("elapsed_time", time.Since(start)).Dict("stats", stats).Msg("")
	}
}
