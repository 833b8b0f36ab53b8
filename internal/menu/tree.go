package menu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tree is the immutable navigation graph. Built once at startup, shared
// read-only by every session.
type Tree struct {
	root        string
	backInput   string
	cancelInput string
	nodes       map[string]*Node
}

// treeFile is the on-disk YAML shape.
type treeFile struct {
	Root        string  `yaml:"root"`
	BackInput   string  `yaml:"backInput"`
	CancelInput string  `yaml:"cancelInput"`
	Nodes       []*Node `yaml:"nodes"`
}

// New builds and validates a tree from a node table.
func New(root, backInput, cancelInput string, nodes []*Node) (*Tree, error) {
	t := &Tree{
		root:        root,
		backInput:   backInput,
		cancelInput: cancelInput,
		nodes:       make(map[string]*Node, len(nodes)),
	}
	if t.backInput == "" {
		t.backInput = "0"
	}
	if t.cancelInput == "" {
		t.cancelInput = "00"
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("menu: node with empty id")
		}
		if _, dup := t.nodes[n.ID]; dup {
			return nil, fmt.Errorf("menu: duplicate node id %q", n.ID)
		}
		t.nodes[n.ID] = n
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a tree from a YAML file.
func LoadFile(path string) (*Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu: %w", err)
	}
	var f treeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse menu: %w", err)
	}
	return New(f.Root, f.BackInput, f.CancelInput, f.Nodes)
}

// validate enforces the structural invariants: the root exists, every edge
// target exists, non-terminal nodes have at least one edge, and the forward
// graph (edges only, back edges excluded) is acyclic from the root.
func (t *Tree) validate() error {
	if _, ok := t.nodes[t.root]; !ok {
		return fmt.Errorf("menu: root node %q not found", t.root)
	}
	for id, n := range t.nodes {
		if !n.Terminal && len(n.Edges) == 0 {
			return fmt.Errorf("menu: non-terminal node %q has no edges", id)
		}
		if n.Terminal && len(n.Edges) > 0 {
			return fmt.Errorf("menu: terminal node %q has edges", id)
		}
		for _, e := range n.Edges {
			if _, ok := t.nodes[e.Next]; !ok {
				return fmt.Errorf("menu: node %q edge %q targets unknown node %q", id, e.Input, e.Next)
			}
		}
		if n.Back != "" {
			if _, ok := t.nodes[n.Back]; !ok {
				return fmt.Errorf("menu: node %q back edge targets unknown node %q", id, n.Back)
			}
		}
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on the DFS stack
		black = 2 // done
	)
	color := make(map[string]int, len(t.nodes))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("menu: cycle through node %q", id)
		case black:
			return nil
		}
		color[id] = grey
		for _, e := range t.nodes[id].Edges {
			if err := visit(e.Next); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	return visit(t.root)
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.nodes[t.root] }

// Node returns a node by id, or nil.
func (t *Tree) Node(id string) *Node { return t.nodes[id] }

// CancelInput returns the distinguished session-cancel input.
func (t *Tree) CancelInput() string { return t.cancelInput }

// Resolve applies input to the named node. Match order: exact edges, then
// the explicit back edge, then a wildcard edge. Anything else is a reject
// (re-prompt, no transition).
func (t *Tree) Resolve(nodeID, input string) Resolution {
	n, ok := t.nodes[nodeID]
	if ok && !n.Terminal {
		for _, e := range n.Edges {
			if e.Input != WildcardInput && e.Input == input {
				return Resolution{Next: t.nodes[e.Next]}
			}
		}
		if n.Back != "" && input == t.backInput {
			return Resolution{Next: t.nodes[n.Back], Back: true}
		}
		if input != "" {
			for _, e := range n.Edges {
				if e.Input == WildcardInput {
					return Resolution{Next: t.nodes[e.Next], Captured: true}
				}
			}
		}
	}
	return Resolution{Reject: true}
}
