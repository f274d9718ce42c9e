// Package traversal implements the graph-walk algorithms of spec.md
// §4.J: breadth/depth-first search with direction and type filters,
// shortest path, and the centrality/component measures the facade
// exposes for graph analysis. Grounded on the BFS shape of the teacher's
// internal/database/operations.go GetGraph, generalized from a
// memory_relationships SQL join to an in-memory adjacency walk over
// graph.Indexes.
package traversal

import (
	"sort"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// Direction controls which edges a traversal follows from each node.
type Direction int

const (
	// DirectionOut follows only outgoing relations (From == current).
	DirectionOut Direction = iota
	// DirectionIn follows only incoming relations (To == current).
	DirectionIn
	// DirectionBoth follows relations in either direction.
	DirectionBoth
)

// Options configures a BFS/DFS walk.
type Options struct {
	Direction Direction
	// MaxDepth bounds how far the walk goes from the start node; 0 means
	// unbounded.
	MaxDepth int
	// RelationTypes, if non-empty, restricts traversal to these types.
	RelationTypes map[string]struct{}
}

func (o Options) neighbors(idx *graph.Indexes, name string) []*graph.Relation {
	var rels []*graph.Relation
	switch o.Direction {
	case DirectionOut:
		rels = idx.Outgoing(name)
	case DirectionIn:
		rels = idx.Incoming(name)
	default:
		rels = idx.Bidirectional(name)
	}
	if len(o.RelationTypes) == 0 {
		return rels
	}
	out := rels[:0:0]
	for _, r := range rels {
		if _, ok := o.RelationTypes[r.RelationType]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (o Options) other(r *graph.Relation, current string) string {
	if r.From == current {
		return r.To
	}
	return r.From
}

// BFS visits every entity reachable from start, breadth-first, honoring
// opts.MaxDepth/Direction/RelationTypes. The returned slice is in visit
// order with start first.
func BFS(idx *graph.Indexes, start string, opts Options) []string {
	visited := map[string]bool{start: true}
	order := []string{start}
	queue := []string{start}
	depth := map[string]int{start: 0}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if opts.MaxDepth > 0 && depth[cur] >= opts.MaxDepth {
			continue
		}
		neighbors := opts.neighbors(idx, cur)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Key() < neighbors[j].Key() })
		for _, r := range neighbors {
			next := opts.other(r, cur)
			if visited[next] {
				continue
			}
			visited[next] = true
			depth[next] = depth[cur] + 1
			order = append(order, next)
			queue = append(queue, next)
		}
	}
	return order
}

// DFS visits every entity reachable from start, depth-first.
func DFS(idx *graph.Indexes, start string, opts Options) []string {
	visited := map[string]bool{}
	var order []string

	var visit func(name string, depth int)
	visit = func(name string, depth int) {
		if visited[name] {
			return
		}
		visited[name] = true
		order = append(order, name)
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			return
		}
		neighbors := opts.neighbors(idx, name)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Key() < neighbors[j].Key() })
		for _, r := range neighbors {
			visit(opts.other(r, name), depth+1)
		}
	}
	visit(start, 0)
	return order
}

// ShortestPath returns the shortest sequence of entity names from start
// to end (inclusive of both), following opts.Direction/RelationTypes, or
// nil if end is unreachable. Unweighted BFS, since relations carry no
// edge weight in this engine's data model (spec.md §3).
func ShortestPath(idx *graph.Indexes, start, end string, opts Options) []string {
	if start == end {
		return []string{start}
	}
	visited := map[string]bool{start: true}
	prev := map[string]string{}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		neighbors := opts.neighbors(idx, cur)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Key() < neighbors[j].Key() })
		for _, r := range neighbors {
			next := opts.other(r, cur)
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			if next == end {
				return reconstructPath(prev, start, end)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func reconstructPath(prev map[string]string, start, end string) []string {
	path := []string{end}
	cur := end
	for cur != start {
		cur = prev[cur]
		path = append(path, cur)
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ConnectedComponents partitions every entity in allNames into
// weakly-connected components (relation direction ignored), using
// union-find.
func ConnectedComponents(idx *graph.Indexes, allNames []string) [][]string {
	uf := newUnionFind(allNames)
	for _, name := range allNames {
		for _, r := range idx.Bidirectional(name) {
			uf.union(r.From, r.To)
		}
	}

	groups := make(map[string][]string)
	for _, name := range allNames {
		root := uf.find(name)
		groups[root] = append(groups[root], name)
	}

	var out [][]string
	for _, g := range groups {
		sort.Strings(g)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind(names []string) *unionFind {
	uf := &unionFind{parent: make(map[string]string, len(names))}
	for _, n := range names {
		uf.parent[n] = n
	}
	return uf
}

func (uf *unionFind) find(x string) string {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
	}
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}
