package traversal

import (
	"sort"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// DegreeCentrality returns, for every name in allNames, its in+out degree.
func DegreeCentrality(idx *graph.Indexes, allNames []string) map[string]int {
	out := make(map[string]int, len(allNames))
	for _, name := range allNames {
		out[name] = len(idx.Outgoing(name)) + len(idx.Incoming(name))
	}
	return out
}

// BetweennessCentrality computes unweighted betweenness centrality with
// Brandes' algorithm, treating every relation as undirected (spec.md
// §4.J names betweenness as one of the centrality measures; the teacher
// has no equivalent, so this follows the textbook Brandes formulation,
// the standard approach any graph-analysis codebase would reach for).
func BetweennessCentrality(idx *graph.Indexes, allNames []string) map[string]float64 {
	centrality := make(map[string]float64, len(allNames))
	for _, name := range allNames {
		centrality[name] = 0
	}

	adjacency := buildUndirectedAdjacency(idx, allNames)

	for _, s := range allNames {
		stack := []string{}
		pred := make(map[string][]string)
		sigma := make(map[string]float64, len(allNames))
		dist := make(map[string]int, len(allNames))
		for _, v := range allNames {
			sigma[v] = 0
			dist[v] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []string{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			neighbors := append([]string(nil), adjacency[v]...)
			sort.Strings(neighbors)
			for _, w := range neighbors {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make(map[string]float64, len(allNames))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				if sigma[w] != 0 {
					delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
				}
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}

	// Each shortest path counted from both endpoints' perspective in an
	// undirected graph; halve to get the conventional score.
	for k := range centrality {
		centrality[k] /= 2
	}
	return centrality
}

func buildUndirectedAdjacency(idx *graph.Indexes, allNames []string) map[string][]string {
	adjacency := make(map[string][]string, len(allNames))
	seen := make(map[string]map[string]struct{}, len(allNames))
	for _, name := range allNames {
		seen[name] = make(map[string]struct{})
	}
	for _, name := range allNames {
		for _, r := range idx.Bidirectional(name) {
			other := r.From
			if other == name {
				other = r.To
			}
			if other == name {
				continue
			}
			if _, ok := seen[name][other]; !ok {
				seen[name][other] = struct{}{}
				adjacency[name] = append(adjacency[name], other)
			}
			if _, ok := seen[other][name]; !ok {
				seen[other][name] = struct{}{}
				adjacency[other] = append(adjacency[other], name)
			}
		}
	}
	return adjacency
}

// PageRankOptions configures the power-iteration PageRank computation.
type PageRankOptions struct {
	Damping    float64 // conventional default 0.85
	Iterations int     // conventional default 100
	Tolerance  float64 // stop early once max rank delta falls below this
}

// DefaultPageRankOptions returns the textbook defaults.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{Damping: 0.85, Iterations: 100, Tolerance: 1e-6}
}

// PageRank computes PageRank over the directed relation graph using power
// iteration, treating a node with no outgoing relations as distributing
// its rank uniformly to every node, itself included (the standard
// "dangling node" handling).
func PageRank(idx *graph.Indexes, allNames []string, opts PageRankOptions) map[string]float64 {
	n := len(allNames)
	if n == 0 {
		return map[string]float64{}
	}

	rank := make(map[string]float64, n)
	for _, name := range allNames {
		rank[name] = 1.0 / float64(n)
	}

	outDegree := make(map[string]int, n)
	for _, name := range allNames {
		outDegree[name] = len(idx.Outgoing(name))
	}

	for iter := 0; iter < opts.Iterations; iter++ {
		next := make(map[string]float64, n)
		var danglingMass float64
		for _, name := range allNames {
			if outDegree[name] == 0 {
				danglingMass += rank[name]
			}
		}
		base := (1 - opts.Damping) / float64(n)
		danglingShare := opts.Damping * danglingMass / float64(n)
		for _, name := range allNames {
			next[name] = base + danglingShare
		}
		for _, name := range allNames {
			if outDegree[name] == 0 {
				continue
			}
			share := opts.Damping * rank[name] / float64(outDegree[name])
			for _, r := range idx.Outgoing(name) {
				next[r.To] += share
			}
		}

		var maxDelta float64
		for _, name := range allNames {
			delta := next[name] - rank[name]
			if delta < 0 {
				delta = -delta
			}
			if delta > maxDelta {
				maxDelta = delta
			}
		}
		rank = next
		if opts.Tolerance > 0 && maxDelta < opts.Tolerance {
			break
		}
	}
	return rank
}
