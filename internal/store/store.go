// Package store keeps the vertices and edges of a dependency graph in memory.
// It backs github.com/dominikbraun/graph and answers the ancestry queries the
// task runner needs to plan targets.
package store

import (
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// DependencyStore is a graph store that can also list the ancestors of a
// vertex.
type DependencyStore[K comparable, T any] interface {
	graph.Store[K, T]
	Ancestors(k K) ([]K, error)
}

type MemoryStore[K comparable, T any] struct {
	lock             sync.RWMutex
	vertices         map[K]T
	vertexProperties map[K]graph.VertexProperties

	// outEdges and inEdges are indexed by source then target (resp. target
	// then source) for O(1) lookups in both directions.
	outEdges map[K]map[K]graph.Edge[K]
	inEdges  map[K]map[K]graph.Edge[K]
}

func NewMemoryStore[K comparable, T any]() *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		vertices:         make(map[K]T),
		vertexProperties: make(map[K]graph.VertexProperties),
		outEdges:         make(map[K]map[K]graph.Edge[K]),
		inEdges:          make(map[K]map[K]graph.Edge[K]),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; ok {
		return graph.ErrVertexAlreadyExists
	}

	s.vertices[k] = t
	s.vertexProperties[k] = p

	return nil
}

func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	hashes := make([]K, 0, len(s.vertices))
	for k := range s.vertices {
		hashes = append(hashes, k)
	}

	return hashes, nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.vertices[k]
	if !ok {
		return v, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return v, s.vertexProperties[k], nil
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; !ok {
		return graph.ErrVertexNotFound
	}
	if len(s.inEdges[k]) > 0 || len(s.outEdges[k]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.inEdges, k)
	delete(s.outEdges, k)
	delete(s.vertices, k)
	delete(s.vertexProperties, k)

	return nil
}

func (s *MemoryStore[K, T]) AddEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash]; !ok {
		s.outEdges[sourceHash] = make(map[K]graph.Edge[K])
	}
	s.outEdges[sourceHash][targetHash] = edge

	if _, ok := s.inEdges[targetHash]; !ok {
		s.inEdges[targetHash] = make(map[K]graph.Edge[K])
	}
	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *MemoryStore[K, T]) UpdateEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash][targetHash]; !ok {
		return graph.ErrEdgeNotFound
	}
	s.outEdges[sourceHash][targetHash] = edge
	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *MemoryStore[K, T]) RemoveEdge(sourceHash, targetHash K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[targetHash], sourceHash)
	delete(s.outEdges[sourceHash], targetHash)

	return nil
}

func (s *MemoryStore[K, T]) Edge(sourceHash, targetHash K) (graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edge, ok := s.outEdges[sourceHash][targetHash]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[K], 0)
	for _, edges := range s.outEdges {
		for _, edge := range edges {
			res = append(res, edge)
		}
	}

	return res, nil
}

// CreatesCycle reports whether an edge from source to target would close a
// cycle. It walks inEdges from source looking for target, which avoids
// building a predecessor map.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	if _, _, err := s.Vertex(source); err != nil {
		return false, errors.Wrapf(err, "could not get vertex with hash %v", source)
	}
	if _, _, err := s.Vertex(target); err != nil {
		return false, errors.Wrapf(err, "could not get vertex with hash %v", target)
	}
	if source == target {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	found := false
	s.walkUp(source, func(k K) bool {
		found = k == target

		return !found
	})

	return found, nil
}

// Ancestors returns every vertex from which k can be reached, k excluded.
// The order is unspecified.
func (s *MemoryStore[K, T]) Ancestors(k K) ([]K, error) {
	if _, _, err := s.Vertex(k); err != nil {
		return nil, errors.Wrapf(err, "could not get vertex with hash %v", k)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	var ancestors []K
	s.walkUp(k, func(current K) bool {
		if current != k {
			ancestors = append(ancestors, current)
		}

		return true
	})

	return ancestors, nil
}

// walkUp visits start and every vertex reaching it, depth first, until visit
// returns false. The caller holds the read lock.
func (s *MemoryStore[K, T]) walkUp(start K, visit func(K) bool) {
	stack := []K{start}
	visited := make(map[K]struct{})
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		if !visit(current) {
			return
		}
		for parent := range s.inEdges[current] {
			stack = append(stack, parent)
		}
	}
}

// SortedAncestors is Ancestors with a deterministic order given by less.
func SortedAncestors[K comparable, T any](s DependencyStore[K, T], k K, less func(a, b K) bool) ([]K, error) {
	ancestors, err := s.Ancestors(k)
	if err != nil {
		return nil, err
	}
	sort.Slice(ancestors, func(i, j int) bool { return less(ancestors[i], ancestors[j]) })

	return ancestors, nil
}

var _ DependencyStore[string, string] = (*MemoryStore[string, string])(nil)
