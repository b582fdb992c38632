package ahocorasick

import (
	"fmt"
	"strings"

	"gmatch/ext/xlog"
)

// StringToWord converts s to a word, one letter per byte.
func StringToWord(s string) Word {
	w := make(Word, len(s))
	for i := 0; i < len(s); i++ {
		w[i] = Letter(s[i])
	}
	return w
}

// String renders w back to text. Letters wider than one byte are written
// as <n>.
func (w Word) String() string {
	var b strings.Builder
	b.Grow(len(w))
	for _, a := range w {
		if a < 256 {
			b.WriteByte(byte(a))
		} else {
			fmt.Fprintf(&b, "<%d>", a)
		}
	}
	return b.String()
}

// AddWord inserts w and returns the index of its final node. Adding a word
// that is already stored is a no-op returning the same index. The empty word
// cannot be stored, the root is not a terminal.
func (t *Trie) AddWord(w Word) (Index, error) {
	if len(w) == 0 {
		return Undefined, fmt.Errorf("%w: nothing to add", ErrEmptyWord)
	}

	i := t.addWord(w)

	if xlog.Logger().Trace().Enabled() {
		xlog.Logger().Trace().Str("log_type", "ahocorasick").Str("op_type", "add_word").Int("word_size", len(w)).Uint32("node", uint32(i)).Int("nodes", t.activeCount).Msg("")
	}
	return i, nil
}

// AddString is AddWord for byte strings.
func (t *Trie) AddString(s string) (Index, error) {
	return t.AddWord(StringToWord(s))
}

func (t *Trie) addWord(w Word) Index {
	cur := Root
	for _, a := range w {
		next := t.child(cur, a)
		if next == Undefined {
			next = t.allocate(cur, a)
			t.nodes[cur].children[a] = next
		}
		cur = next
	}
	if !t.nodes[cur].terminal {
		t.nodes[cur].terminal = true
		t.wordCount++
		t.dirty = true
	}
	return cur
}

// RemoveWord deletes w from the stored set and returns the index its final
// node occupied. When the final node has no children the whole dead branch is
// released for reuse, so the returned index may already be inactive. Removing
// a word that is not stored is a no-op returning Undefined.
func (t *Trie) RemoveWord(w Word) (Index, error) {
	if len(w) == 0 {
		return Undefined, fmt.Errorf("%w: nothing to remove", ErrEmptyWord)
	}

	i := t.removeWord(w)

	if xlog.Logger().Trace().Enabled() {
		xlog.Logger().Trace().Str("log_type", "ahocorasick").Str("op_type", "rm_word").Int("word_size", len(w)).Uint32("node", uint32(i)).Int("nodes", t.activeCount).Msg("")
	}
	return i, nil
}

// RemoveString is RemoveWord for byte strings.
func (t *Trie) RemoveString(s string) (Index, error) {
	return t.RemoveWord(StringToWord(s))
}

func (t *Trie) removeWord(w Word) Index {
	last := Root
	for _, a := range w {
		last = t.child(last, a)
		if last == Undefined {
			return Undefined
		}
	}
	if !t.nodes[last].terminal {
		// w is a strict prefix of stored words, not a word itself
		return Undefined
	}

	t.nodes[last].terminal = false
	t.wordCount--
	t.dirty = true

	if len(t.nodes[last].children) > 0 {
		// other words pass through, keep the branch
		return last
	}

	// release the dead branch bottom-up, stop at the first ancestor that is
	// still needed: terminal, has another child, or is the root
	for cur := last; ; {
		p := t.nodes[cur].parent
		delete(t.nodes[p].children, t.nodes[cur].letter)
		t.release(cur)
		if p == Root || t.nodes[p].terminal || len(t.nodes[p].children) > 0 {
			break
		}
		cur = p
	}
	return last
}
