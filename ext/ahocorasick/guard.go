package ahocorasick

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Guard wraps a Trie for shared use. Mutations take the write lock, reads the
// read lock. A link dependent read that finds the trie dirty drops its read
// lock and funnels through singleflight, so one caller pays for the rebuild
// while the rest wait for that result instead of piling up on the write lock.
type Guard struct {
	mu    sync.RWMutex
	group singleflight.Group
	trie  *Trie
}

// NewGuard wraps t, or a fresh empty trie when t is nil.
func NewGuard(t *Trie) *Guard {
	if t == nil {
		t = New()
	}
	return &Guard{trie: t}
}

func (g *Guard) AddWord(w Word) (Index, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trie.AddWord(w)
}

func (g *Guard) AddString(s string) (Index, error) {
	return g.AddWord(StringToWord(s))
}

func (g *Guard) RemoveWord(w Word) (Index, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trie.RemoveWord(w)
}

func (g *Guard) RemoveString(s string) (Index, error) {
	return g.RemoveWord(StringToWord(s))
}

func (g *Guard) Init() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trie.Init()
}

func (g *Guard) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.NodeCount()
}

func (g *Guard) WordCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.WordCount()
}

func (g *Guard) Child(parent Index, a Letter) (Index, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.Child(parent, a)
}

func (g *Guard) Height(i Index) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.Height(i)
}

func (g *Guard) Signature(i Index) (Word, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.Signature(i)
}

func (g *Guard) Terminal(i Index) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.Terminal(i)
}

func (g *Guard) Active(i Index) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.Active(i)
}

// Copy snapshots the wrapped trie.
func (g *Guard) Copy() *Trie {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.Copy()
}

func (g *Guard) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trie.String()
}

// SuffixLink and the traversals below must never trigger a rebuild under the
// read lock, other readers would see the links move. They retry until they
// observe a clean trie while holding the read lock, rebuilding in between.

func (g *Guard) SuffixLink(i Index) (Index, error) {
	for {
		g.mu.RLock()
		if !g.trie.dirty {
			v, err := g.trie.SuffixLink(i)
			g.mu.RUnlock()
			return v, err
		}
		g.mu.RUnlock()
		g.rebuild()
	}
}

func (g *Guard) Traverse(current Index, a Letter) (Index, error) {
	for {
		g.mu.RLock()
		if !g.trie.dirty {
			v, err := g.trie.Traverse(current, a)
			g.mu.RUnlock()
			return v, err
		}
		g.mu.RUnlock()
		g.rebuild()
	}
}

func (g *Guard) TraverseWord(start Index, w Word) (Index, error) {
	for {
		g.mu.RLock()
		if !g.trie.dirty {
			v, err := g.trie.TraverseWord(start, w)
			g.mu.RUnlock()
			return v, err
		}
		g.mu.RUnlock()
		g.rebuild()
	}
}

func (g *Guard) TraverseString(start Index, s string) (Index, error) {
	return g.TraverseWord(start, StringToWord(s))
}

func (g *Guard) Dot() string {
	for {
		g.mu.RLock()
		if !g.trie.dirty {
			s := g.trie.Dot()
			g.mu.RUnlock()
			return s
		}
		g.mu.RUnlock()
		g.rebuild()
	}
}

// rebuild collapses concurrent rebuild demand into one write locked pass.
func (g *Guard) rebuild() {
	g.group.Do("rebuild", func() (interface{}, error) {
		g.mu.Lock()
		if g.trie.dirty {
			g.trie.rebuild()
		}
		g.mu.Unlock()
		return nil, nil
	})
}
