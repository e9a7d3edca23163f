package store_test

import (
	"strings"
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/store"
)

func newTargetGraph(t *testing.T) (graph.Graph[string, string], *store.MemoryStore[string, string]) {
	t.Helper()

	s := store.NewMemoryStore[string, string]()
	g := graph.NewWithStore(graph.StringHash, s, graph.Directed(), graph.PreventCycles())
	for _, name := range []string{"clean", "format", "test", "run"} {
		require.NoError(t, g.AddVertex(name))
	}
	require.NoError(t, g.AddEdge("clean", "test"))
	require.NoError(t, g.AddEdge("format", "test"))
	require.NoError(t, g.AddEdge("test", "run"))

	return g, s
}

func TestMemoryStoreAncestors(t *testing.T) {
	t.Parallel()

	_, s := newTargetGraph(t)

	tests := map[string]struct {
		vertex string
		want   []string
	}{
		"leaf with transitive parents": {vertex: "run", want: []string{"clean", "format", "test"}},
		"direct parents only":          {vertex: "test", want: []string{"clean", "format"}},
		"root":                         {vertex: "clean", want: []string{}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := store.SortedAncestors[string, string](s, tt.vertex, func(a, b string) bool { return strings.Compare(a, b) < 0 })
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestMemoryStoreAncestorsUnknownVertex(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore[string, string]()
	_, err := s.Ancestors("missing")
	require.ErrorIs(t, err, graph.ErrVertexNotFound)
}

func TestMemoryStorePreventsCycles(t *testing.T) {
	t.Parallel()

	g, s := newTargetGraph(t)

	cycle, err := s.CreatesCycle("run", "clean")
	require.NoError(t, err)
	assert.True(t, cycle)

	cycle, err = s.CreatesCycle("clean", "format")
	require.NoError(t, err)
	assert.False(t, cycle)

	require.ErrorIs(t, g.AddEdge("run", "format"), graph.ErrEdgeCreatesCycle)
}

func TestMemoryStoreRemoveVertex(t *testing.T) {
	t.Parallel()

	_, s := newTargetGraph(t)

	require.ErrorIs(t, s.RemoveVertex("test"), graph.ErrVertexHasEdges)
	require.ErrorIs(t, s.RemoveVertex("missing"), graph.ErrVertexNotFound)

	require.NoError(t, s.RemoveEdge("test", "run"))
	require.NoError(t, s.RemoveVertex("run"))

	count, err := s.VertexCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	edges, err := s.ListEdges()
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestMemoryStoreUpdateEdge(t *testing.T) {
	t.Parallel()

	_, s := newTargetGraph(t)

	edge, err := s.Edge("test", "run")
	require.NoError(t, err)
	edge.Properties.Weight = 3
	require.NoError(t, s.UpdateEdge("test", "run", edge))

	got, err := s.Edge("test", "run")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Properties.Weight)

	require.ErrorIs(t, s.UpdateEdge("run", "test", edge), graph.ErrEdgeNotFound)
}
