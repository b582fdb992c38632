package ahocorasick

import (
	"fmt"
	"sort"
	"strings"
)

// Dot renders the trie in graphviz dot format: tree edges solid and labelled
// with their letter, suffix links dashed, terminal nodes drawn as double
// circles. Stale links are recomputed first so the dashed edges are current.
// The root's trivial self link is not drawn.
func (t *Trie) Dot() string {
	if t.dirty {
		t.rebuild()
	}

	var b strings.Builder
	b.WriteString("digraph trie {\n")
	b.WriteString("\tnode [shape=circle]\n")
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.active {
			continue
		}
		if n.terminal {
			fmt.Fprintf(&b, "\t%d [shape=doublecircle]\n", i)
		}
		letters := make([]Letter, 0, len(n.children))
		for a := range n.children {
			letters = append(letters, a)
		}
		sort.Slice(letters, func(x, y int) bool { return letters[x] < letters[y] })
		for _, a := range letters {
			fmt.Fprintf(&b, "\t%d -> %d [label=%q]\n", i, n.children[a], letterLabel(a))
		}
		if Index(i) != Root {
			fmt.Fprintf(&b, "\t%d -> %d [style=dashed color=gray constraint=false]\n", i, n.link)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func letterLabel(a Letter) string {
	if a >= '!' && a <= '~' {
		return string(rune(a))
	}
	return fmt.Sprintf("0x%x", uint32(a))
}
