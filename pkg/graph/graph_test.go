package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro-ai/inquiro/pkg/agents"
)

func appendNode(name string) NodeFunc {
	return func(ctx context.Context, state *agents.ResearchState) error {
		state.Message += name + ";"
		return nil
	}
}

func TestLinearRun(t *testing.T) {
	w, err := NewBuilder().
		AddNode("a", appendNode("a")).
		AddNode("b", appendNode("b")).
		AddNode("c", appendNode("c")).
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	state := &agents.ResearchState{}
	var visited []string
	require.NoError(t, w.Run(context.Background(), state, func(name string, _ *agents.ResearchState) {
		visited = append(visited, name)
	}))

	assert.Equal(t, "a;b;c;", state.Message)
	assert.Equal(t, []string{"a", "b", "c"}, visited)
}

func TestConditionalRouting(t *testing.T) {
	build := func() *Builder {
		return NewBuilder().
			AddNode("check", appendNode("check")).
			AddNode("left", appendNode("left")).
			AddNode("right", appendNode("right")).
			AddConditional("check", func(state *agents.ResearchState) string {
				if state.NeedsHITL {
					return "left"
				}
				return "right"
			}).
			SetEntry("check")
	}

	w, err := build().Compile()
	require.NoError(t, err)

	state := &agents.ResearchState{NeedsHITL: true}
	require.NoError(t, w.Run(context.Background(), state, nil))
	assert.Equal(t, "check;left;", state.Message)

	state = &agents.ResearchState{}
	require.NoError(t, w.Run(context.Background(), state, nil))
	assert.Equal(t, "check;right;", state.Message)
}

func TestNodeErrorStopsRun(t *testing.T) {
	w, err := NewBuilder().
		AddNode("a", appendNode("a")).
		AddNode("boom", func(ctx context.Context, state *agents.ResearchState) error {
			return fmt.Errorf("no evidence")
		}).
		AddNode("never", appendNode("never")).
		AddEdge("a", "boom").
		AddEdge("boom", "never").
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	state := &agents.ResearchState{}
	err = w.Run(context.Background(), state, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "boom"`)
	assert.Contains(t, state.Error, "no evidence")
	assert.NotContains(t, state.Message, "never")
}

func TestNodePanicIsRecovered(t *testing.T) {
	w, err := NewBuilder().
		AddNode("panicky", func(ctx context.Context, state *agents.ResearchState) error {
			panic("nil map write")
		}).
		SetEntry("panicky").
		Compile()
	require.NoError(t, err)

	state := &agents.ResearchState{}
	err = w.Run(context.Background(), state, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Contains(t, state.Error, "nil map write")
}

func TestCycleGuard(t *testing.T) {
	w, err := NewBuilder().
		AddNode("a", appendNode("a")).
		AddNode("b", appendNode("b")).
		AddEdge("a", "b").
		AddEdge("b", "a").
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	err = w.Run(context.Background(), &agents.ResearchState{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
}

func TestContextCancellation(t *testing.T) {
	w, err := NewBuilder().
		AddNode("a", appendNode("a")).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = w.Run(ctx, &agents.ResearchState{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompileValidation(t *testing.T) {
	_, err := NewBuilder().AddNode("a", appendNode("a")).Compile()
	assert.ErrorContains(t, err, "no entry")

	_, err = NewBuilder().AddNode("a", appendNode("a")).SetEntry("missing").Compile()
	assert.ErrorContains(t, err, "not registered")

	_, err = NewBuilder().
		AddNode("a", appendNode("a")).
		AddEdge("a", "ghost").
		SetEntry("a").
		Compile()
	assert.ErrorContains(t, err, "unknown node")
}
