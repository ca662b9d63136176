// Copyright 2025 The Inquiro Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graph is a minimal compiled workflow graph. A workflow is
// built once at process start, is immutable afterward, and is reusable
// across concurrent runs: all run state lives in the ResearchState
// passed to Run.
package graph

import (
	"context"
	"fmt"

	"github.com/inquiro-ai/inquiro/pkg/agents"
)

// End terminates a run when returned by a router or set as an edge
// target.
const End = ""

// maxSteps guards against accidental cycles.
const maxSteps = 32

// NodeFunc is one workflow step. Nodes own the state exclusively while
// they run.
type NodeFunc func(ctx context.Context, state *agents.ResearchState) error

// RouterFunc picks the next node after a conditional step.
type RouterFunc func(state *agents.ResearchState) string

// Observer is invoked after each successful node, before routing.
type Observer func(nodeName string, state *agents.ResearchState)

type node struct {
	name   string
	run    NodeFunc
	next   string
	router RouterFunc
}

// Builder accumulates nodes and edges before compilation.
type Builder struct {
	nodes map[string]*node
	entry string
}

func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]*node)}
}

// AddNode registers a named step.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	b.nodes[name] = &node{name: name, run: fn, next: End}
	return b
}

// AddEdge sets the static successor of from.
func (b *Builder) AddEdge(from, to string) *Builder {
	if n, ok := b.nodes[from]; ok {
		n.next = to
	}
	return b
}

// AddConditional sets a router on from; it overrides any static edge.
func (b *Builder) AddConditional(from string, router RouterFunc) *Builder {
	if n, ok := b.nodes[from]; ok {
		n.router = router
	}
	return b
}

// SetEntry names the first node of a run.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// Compile validates the graph and returns an immutable workflow.
func (b *Builder) Compile() (*Workflow, error) {
	if b.entry == "" {
		return nil, fmt.Errorf("workflow has no entry node")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("entry node %q is not registered", b.entry)
	}
	for name, n := range b.nodes {
		if n.next != End {
			if _, ok := b.nodes[n.next]; !ok {
				return nil, fmt.Errorf("node %q has edge to unknown node %q", name, n.next)
			}
		}
	}

	nodes := make(map[string]*node, len(b.nodes))
	for name, n := range b.nodes {
		copied := *n
		nodes[name] = &copied
	}
	return &Workflow{nodes: nodes, entry: b.entry}, nil
}

// Workflow is a compiled graph, safe for concurrent runs.
type Workflow struct {
	nodes map[string]*node
	entry string
}

// Run executes the graph from the entry node until it reaches End.
// The first node error stops the run and is mirrored into state.Error.
func (w *Workflow) Run(ctx context.Context, state *agents.ResearchState, observe Observer) error {
	current := w.entry
	for steps := 0; current != End; steps++ {
		if steps >= maxSteps {
			err := fmt.Errorf("workflow exceeded %d steps at node %q", maxSteps, current)
			state.Error = err.Error()
			return err
		}
		if err := ctx.Err(); err != nil {
			state.Error = err.Error()
			return err
		}

		n, ok := w.nodes[current]
		if !ok {
			err := fmt.Errorf("router selected unknown node %q", current)
			state.Error = err.Error()
			return err
		}

		if err := runNode(ctx, n, state); err != nil {
			state.Error = err.Error()
			return err
		}

		if observe != nil {
			observe(n.name, state)
		}

		if n.router != nil {
			current = n.router(state)
		} else {
			current = n.next
		}
	}
	return nil
}

// runNode converts a node panic into an error so a bad node cannot
// take down a worker.
func runNode(ctx context.Context, n *node, state *agents.ResearchState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node %q panicked: %v", n.name, r)
		}
	}()
	if err := n.run(ctx, state); err != nil {
		return fmt.Errorf("node %q: %w", n.name, err)
	}
	return nil
}
