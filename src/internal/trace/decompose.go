package trace

import (
	"errors"
	"strings"
)

var (
	ErrEntryPointNotFound  = errors.New("entry point not found in trace")
	ErrAmbiguousEntryPoint = errors.New("entry point positions disagree at the first index")
)

type EntryPoint struct {
	Address  string
	Function string
}

// Item is a detached copy of a trace subtree.
type Item struct {
	Node
	Children []*Item `json:"children,omitempty"`
}

type Decomposition struct {
	Precondition  []*Item `json:"precondition"`
	AttackLogic   []*Item `json:"attack_logic"`
	Postcondition []*Item `json:"postcondition"`
	// SplitPoint is the index path the phases were cut at.
	SplitPoint []int `json:"split_point"`
}

// Find returns the index paths of every call to entry.
func (t *Tree) Find(entry EntryPoint) [][]int {
	var out [][]int
	var walk func(level []int, path []int)
	walk = func(level []int, path []int) {
		for pos, idx := range level {
			p := append(append([]int(nil), path...), pos)
			n := &t.Nodes[idx]
			if n.IsCall() && strings.EqualFold(n.Address, entry.Address) && n.Function == entry.Function {
				out = append(out, p)
			}
			walk(t.children[idx], p)
		}
	}
	walk(t.Roots, nil)
	return out
}

// SplitPoint locates where the attack starts. A single match splits at its
// parent; several matches split at their longest common prefix.
func (t *Tree) SplitPoint(entry EntryPoint) ([]int, error) {
	paths := t.Find(entry)
	switch len(paths) {
	case 0:
		return nil, ErrEntryPointNotFound
	case 1:
		return paths[0][:len(paths[0])-1], nil
	}
	shortest := len(paths[0])
	for _, p := range paths[1:] {
		if len(p) < shortest {
			shortest = len(p)
		}
	}
	var prefix []int
	for i := 0; i < shortest; i++ {
		v := paths[0][i]
		same := true
		for _, p := range paths[1:] {
			if p[i] != v {
				same = false
				break
			}
		}
		if !same {
			if i == 0 {
				return nil, ErrAmbiguousEntryPoint
			}
			break
		}
		prefix = append(prefix, v)
	}
	return prefix, nil
}

// Decompose cuts the trace into precondition, attack logic and postcondition.
func Decompose(t *Tree, entry EntryPoint) (*Decomposition, error) {
	split, err := t.SplitPoint(entry)
	if err != nil {
		return nil, err
	}
	d := &Decomposition{SplitPoint: split}

	level := t.Level(split)
	i := 0
	for i < len(level) && t.Nodes[level[i]].Kind == KindEvent {
		i++
	}
	for _, idx := range level[i:] {
		d.AttackLogic = append(d.AttackLogic, t.Item(idx))
	}
	d.Precondition = t.before(t.Roots, split)
	d.Postcondition = t.after(t.Roots, split)
	return d, nil
}

// Item copies the subtree rooted at idx.
func (t *Tree) Item(idx int) *Item {
	it := &Item{Node: t.Nodes[idx]}
	for _, c := range t.children[idx] {
		it.Children = append(it.Children, t.Item(c))
	}
	return it
}

func (t *Tree) items(level []int) []*Item {
	out := make([]*Item, 0, len(level))
	for _, idx := range level {
		out = append(out, t.Item(idx))
	}
	return out
}

// before keeps what runs ahead of path: earlier siblings in full and each
// ancestor on the path with only its own earlier part.
func (t *Tree) before(level []int, path []int) []*Item {
	if len(path) == 0 {
		return nil
	}
	out := t.items(level[:path[0]])
	head := &Item{Node: t.Nodes[level[path[0]]]}
	if len(path) > 1 {
		head.Children = t.before(t.children[level[path[0]]], path[1:])
	}
	return append(out, head)
}

// after mirrors before for what runs once the attack returns.
func (t *Tree) after(level []int, path []int) []*Item {
	if len(path) == 0 {
		return nil
	}
	head := &Item{Node: t.Nodes[level[path[0]]]}
	if len(path) > 1 {
		head.Children = t.after(t.children[level[path[0]]], path[1:])
	}
	return append([]*Item{head}, t.items(level[path[0]+1:])...)
}

// Flatten lists items in pre-order.
func Flatten(items []*Item) []*Item {
	var out []*Item
	var walk func([]*Item)
	walk = func(list []*Item) {
		for _, it := range list {
			out = append(out, it)
			walk(it.Children)
		}
	}
	walk(items)
	return out
}
