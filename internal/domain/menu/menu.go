// Package menu keeps the option tree offered to the user and the trail of
// choices that led to the current level.
package menu

import (
	"fmt"
	"strings"
)

// Kind says what choosing a node does.
type Kind string

const (
	Action  Kind = "action"
	Submenu Kind = "menu"
	Speller Kind = "speller"
	Finish  Kind = "finish"
)

// Node is one entry of the tree. Nodes with children are submenus.
type Node struct {
	Label    string
	Kind     Kind
	Prompt   string
	Children []Node
}

func (n Node) kind() Kind {
	if n.Kind != "" {
		return n.Kind
	}
	if len(n.Children) > 0 {
		return Submenu
	}
	return Action
}

// Step is the result of a choice.
type Step struct {
	Kind   Kind
	Label  string
	Prompt string
	// Path is the trail of labels down to and including the chosen node.
	Path []string
}

// Navigator walks the tree. It is not safe for concurrent use; the service
// loop owns it.
type Navigator struct {
	root  []Node
	stack [][]Node
	path  []string
}

// New returns a navigator positioned at the root.
func New(root []Node) (*Navigator, error) {
	if len(root) == 0 {
		return nil, ErrEmptyMenu
	}
	return &Navigator{root: root}, nil
}

func (n *Navigator) level() []Node {
	if len(n.stack) == 0 {
		return n.root
	}
	return n.stack[len(n.stack)-1]
}

// Options lists the labels at the current level.
func (n *Navigator) Options() []string {
	lvl := n.level()
	out := make([]string, len(lvl))
	for i, node := range lvl {
		out[i] = node.Label
	}
	return out
}

// Path returns the labels of the submenus entered so far.
func (n *Navigator) Path() []string {
	return append([]string(nil), n.path...)
}

// Depth is the number of submenus entered.
func (n *Navigator) Depth() int { return len(n.stack) }

// Choose selects the option with the given label, ignoring case and
// surrounding space. A submenu is entered; any other kind leaves the
// position unchanged. An unknown label resets the navigator to the root.
func (n *Navigator) Choose(label string) (Step, error) {
	want := strings.TrimSpace(label)
	for i, node := range n.level() {
		if strings.EqualFold(node.Label, want) {
			return n.ChooseIndex(i)
		}
	}
	n.Reset()
	return Step{}, fmt.Errorf("%w: %q", ErrInvalidSelection, label)
}

// ChooseIndex selects the i-th option of the current level.
func (n *Navigator) ChooseIndex(i int) (Step, error) {
	lvl := n.level()
	if i < 0 || i >= len(lvl) {
		n.Reset()
		return Step{}, fmt.Errorf("%w: index %d", ErrInvalidSelection, i)
	}
	node := lvl[i]
	step := Step{
		Kind:   node.kind(),
		Label:  node.Label,
		Prompt: node.Prompt,
		Path:   append(n.Path(), node.Label),
	}
	if step.Kind == Submenu {
		n.stack = append(n.stack, node.Children)
		n.path = append(n.path, node.Label)
	}
	return step, nil
}

// Back leaves the current submenu. It reports false at the root.
func (n *Navigator) Back() bool {
	if len(n.stack) == 0 {
		return false
	}
	n.stack = n.stack[:len(n.stack)-1]
	n.path = n.path[:len(n.path)-1]
	return true
}

// Reset returns to the root.
func (n *Navigator) Reset() {
	n.stack = nil
	n.path = nil
}
