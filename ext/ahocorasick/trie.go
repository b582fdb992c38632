package ahocorasick

import (
	"errors"
	"fmt"
	"sort"

	"gmatch/ext/xlog"
)

// index based aho-corasick trie
// nodes live in a flat arena slice, edges are letter -> index maps,
// removed branches are recycled through a free list instead of compacting
// the arena, so indexes held by callers stay stable across mutations

// Index identifies a node slot in the arena. Indexes are never reassigned to
// a different position, but a slot can be released and reused after the word
// owning it is removed.
type Index uint32

// Letter is one symbol of a word. Bytes fit, but any 32-bit alphabet works.
type Letter uint32

// Word is a sequence of letters.
type Word []Letter

const (
	// Root is the index of the root node, fixed for the lifetime of the trie.
	Root Index = 0

	// Undefined marks "no such node": absent children, failed lookups.
	Undefined Index = ^Index(0)
)

var (
	ErrIndexOutOfRange = errors.New("node index out of range")
	ErrInactiveNode    = errors.New("inactive node index")
	ErrEmptyWord       = errors.New("empty word")
)

type node struct {
	children map[Letter]Index
	parent   Index
	letter   Letter // label of the edge from parent
	link     Index  // suffix link, Undefined until computed
	terminal bool
	active   bool
}

// Trie holds the automaton. Plain Tries are not safe for concurrent use, see
// Guard for the shared variant.
type Trie struct {
	nodes []node
	free  []Index // released slots, reused last-in-first-out

	activeCount int
	wordCount   int
	dirty       bool // suffix links stale, recomputed on next link read

	// stats
	allocs   uint64
	recycles uint64
	releases uint64
	rebuilds uint64
}

// New returns an empty trie holding only the root node.
func New() *Trie {
	t := &Trie{
		nodes: make([]node, 0, 64),
	}
	t.nodes = append(t.nodes, node{
		children: make(map[Letter]Index),
		parent:   Undefined,
		link:     Root,
		active:   true,
	})
	t.activeCount = 1

	xlog.Logger().Trace().Str("log_type", "ahocorasick").Str("op_type", "new").Msg("")
	return t
}

// Init resets the trie to the empty state, equivalent to a fresh New().
// Arena storage already allocated is kept for reuse.
func (t *Trie) Init() {
	t.nodes = t.nodes[:1]
	t.nodes[Root] = node{
		children: make(map[Letter]Index),
		parent:   Undefined,
		link:     Root,
		active:   true,
	}
	t.free = t.free[:0]
	t.activeCount = 1
	t.wordCount = 0
	t.dirty = false

	xlog.Logger().Trace().Str("log_type", "ahocorasick").Str("op_type", "init").Msg("")
}

// caller owns wiring the new slot into parent's edge map
func (t *Trie) allocate(parent Index, a Letter) Index {
	t.allocs++
	fresh := node{
		children: make(map[Letter]Index),
		parent:   parent,
		letter:   a,
		link:     Undefined,
		active:   true,
	}

	if n := len(t.free); n > 0 {
		i := t.free[n-1]
		t.free = t.free[:n-1]
		t.nodes[i] = fresh
		t.recycles++
		t.activeCount++
		return i
	}

	i := Index(len(t.nodes))
	t.nodes = append(t.nodes, fresh)
	t.activeCount++
	return i
}

func (t *Trie) release(i Index) {
	n := &t.nodes[i]
	n.active = false
	n.terminal = false
	n.children = nil
	n.link = Undefined
	t.free = append(t.free, i)
	t.activeCount--
	t.releases++
}

// ValidateNodeIndex rejects indexes outside the arena, released slots
// included in the valid range. Undefined is always out of range.
func (t *Trie) ValidateNodeIndex(i Index) error {
	if uint(i) >= uint(len(t.nodes)) {
		return fmt.Errorf("%w: index %d, arena size %d", ErrIndexOutOfRange, i, len(t.nodes))
	}
	return nil
}

// ValidateActiveNodeIndex additionally rejects slots sitting on the free list.
func (t *Trie) ValidateActiveNodeIndex(i Index) error {
	if err := t.ValidateNodeIndex(i); err != nil {
		return err
	}
	if !t.nodes[i].active {
		return fmt.Errorf("%w: index %d", ErrInactiveNode, i)
	}
	return nil
}

// NodeCount returns the number of active nodes, root included.
func (t *Trie) NodeCount() int {
	return t.activeCount
}

// WordCount returns the number of words currently stored.
func (t *Trie) WordCount() int {
	return t.wordCount
}

// Dirty reports whether a mutation left the suffix links stale. The next
// link dependent read recomputes them.
func (t *Trie) Dirty() bool {
	return t.dirty
}

// Active reports whether index i currently holds a node. Unlike the other
// accessors it accepts released slots, that is the question it answers.
func (t *Trie) Active(i Index) (bool, error) {
	if err := t.ValidateNodeIndex(i); err != nil {
		return false, err
	}
	return t.nodes[i].active, nil
}

// Terminal reports whether node i ends a stored word.
func (t *Trie) Terminal(i Index) (bool, error) {
	if err := t.ValidateActiveNodeIndex(i); err != nil {
		return false, err
	}
	return t.nodes[i].terminal, nil
}

// Child returns the node reached from parent by the single letter a, without
// following suffix links. Undefined when parent has no such edge.
func (t *Trie) Child(parent Index, a Letter) (Index, error) {
	if err := t.ValidateActiveNodeIndex(parent); err != nil {
		return Undefined, err
	}
	return t.child(parent, a), nil
}

func (t *Trie) child(parent Index, a Letter) Index {
	if i, found := t.nodes[parent].children[a]; found {
		return i
	}
	return Undefined
}

// Height returns the distance from the root to node i, 0 for the root.
func (t *Trie) Height(i Index) (int, error) {
	if err := t.ValidateActiveNodeIndex(i); err != nil {
		return 0, err
	}
	return t.height(i), nil
}

func (t *Trie) height(i Index) int {
	h := 0
	for t.nodes[i].parent != Undefined {
		i = t.nodes[i].parent
		h++
	}
	return h
}

// Signature returns the word spelled along the path from the root to node i.
// The root has the empty signature.
func (t *Trie) Signature(i Index) (Word, error) {
	if err := t.ValidateActiveNodeIndex(i); err != nil {
		return nil, err
	}
	return t.signature(i), nil
}

func (t *Trie) signature(i Index) Word {
	w := make(Word, 0, 8)
	for t.nodes[i].parent != Undefined {
		w = append(w, t.nodes[i].letter)
		i = t.nodes[i].parent
	}
	for l, r := 0, len(w)-1; l < r; l, r = l+1, r-1 {
		w[l], w[r] = w[r], w[l]
	}
	return w
}

// Walk visits every active node in preorder, the root first, children in
// letter order. fn returning false stops the walk.
func (t *Trie) Walk(fn func(i Index) bool) {
	t.walk(Root, fn)
}

func (t *Trie) walk(i Index, fn func(i Index) bool) bool {
	if !fn(i) {
		return false
	}
	letters := make([]Letter, 0, len(t.nodes[i].children))
	for a := range t.nodes[i].children {
		letters = append(letters, a)
	}
	sort.Slice(letters, func(x, y int) bool { return letters[x] < letters[y] })
	for _, a := range letters {
		if !t.walk(t.nodes[i].children[a], fn) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy sharing no storage with t. Stats counters start
// from zero in the copy.
func (t *Trie) Copy() *Trie {
	c := &Trie{
		nodes:       make([]node, len(t.nodes)),
		free:        append([]Index(nil), t.free...),
		activeCount: t.activeCount,
		wordCount:   t.wordCount,
		dirty:       t.dirty,
	}
	copy(c.nodes, t.nodes)
	for i := range c.nodes {
		if t.nodes[i].children == nil {
			continue
		}
		children := make(map[Letter]Index, len(t.nodes[i].children))
		for a, j := range t.nodes[i].children {
			children[a] = j
		}
		c.nodes[i].children = children
	}
	return c
}

func (t *Trie) String() string {
	return fmt.Sprintf("<aho-corasick trie with %d nodes and %d words>", t.activeCount, t.wordCount)
}
