package ahocorasick

import (
	"fmt"
	"strings"
	"testing"
)

func TestDot(t *testing.T) {

	tr := New()
	tr.AddString("he")
	tr.AddString("she")

	out := tr.Dot()
	fmt.Printf("%s", out)

	if tr.Dirty() {
		t.Errorf("[+] dot export should render fresh links\n")
	}

	for _, want := range []string{
		"digraph trie {",
		"0 -> 1 [label=\"h\"]",
		"0 -> 3 [label=\"s\"]",
		"2 [shape=doublecircle]",
		"5 [shape=doublecircle]",
		"4 -> 1 [style=dashed color=gray constraint=false]",
		"5 -> 2 [style=dashed color=gray constraint=false]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("[+] dot output missing %q\n", want)
		}
	}

	// the root's trivial self link stays out of the picture
	if strings.Contains(out, "0 -> 0 [style=dashed") {
		t.Errorf("[+] dot output draws the root self link\n")
	}

	// released branches disappear from the export
	tr.RemoveString("she")
	out = tr.Dot()
	for _, gone := range []string{"-> 5", "5 ->", "label=\"s\""} {
		if strings.Contains(out, gone) {
			t.Errorf("[+] dot output still shows removed branch: %q\n", gone)
		}
	}
}
