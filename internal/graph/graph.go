// Package graph builds a directed multigraph over the current quote set and
// enumerates bounded-length trade cycles that return to the base asset.
package graph

import (
	"sort"

	"github.com/juant72/sniperforge/internal/domain"
)

// edge is one tradable pair observation. Nodes are referenced by arena
// index so traversal never chases pointers between assets.
type edge struct {
	from  int
	to    int
	quote domain.Quote
}

// Builder enumerates simple cycles of 2 to maxHops hops starting and ending
// at the base asset. Cycles whose thinnest hop is below liquidityFloor are
// discarded before scoring.
type Builder struct {
	maxHops        int
	liquidityFloor int64
}

// NewBuilder validates and stores the traversal bounds. maxHops outside the
// 2..4 range is clamped.
func NewBuilder(maxHops int, liquidityFloor int64) *Builder {
	if maxHops < 2 {
		maxHops = 2
	}
	if maxHops > 4 {
		maxHops = 4
	}
	return &Builder{maxHops: maxHops, liquidityFloor: liquidityFloor}
}

// BuildCycles returns every simple cycle over the quote set that starts and
// ends at base. The set of cycles is fully determined by the quote set: the
// arena orders nodes and edges by key before traversal so the result does
// not depend on map iteration order.
func (b *Builder) BuildCycles(quotes []domain.Quote, base domain.Asset) []domain.Route {
	nodes, index := assetArena(quotes, base)
	baseIdx, ok := index[base]
	if !ok {
		return nil
	}

	// Adjacency lists hold edge indexes, sorted by pair key so two edges on
	// the same pair from different venues keep a stable order.
	edges := make([]edge, 0, len(quotes))
	adj := make([][]int, len(nodes))
	for _, q := range quotes {
		from, okF := index[q.Pair.In]
		to, okT := index[q.Pair.Out]
		if !okF || !okT || from == to {
			continue
		}
		edges = append(edges, edge{from: from, to: to, quote: q})
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].quote.Pair.Key() < edges[j].quote.Pair.Key()
	})
	for i, e := range edges {
		adj[e.from] = append(adj[e.from], i)
	}

	var (
		routes  []domain.Route
		path    []domain.Quote
		visited = make([]bool, len(nodes))
	)
	var dfs func(cur int)
	dfs = func(cur int) {
		for _, ei := range adj[cur] {
			e := edges[ei]
			if e.to == baseIdx {
				if len(path) >= 1 {
					hops := make([]domain.Quote, len(path)+1)
					copy(hops, path)
					hops[len(path)] = e.quote
					r := domain.Route{Base: base, Hops: hops}
					if b.admit(r) {
						routes = append(routes, r)
					}
				}
				continue
			}
			if visited[e.to] || len(path)+1 >= b.maxHops {
				continue
			}
			visited[e.to] = true
			path = append(path, e.quote)
			dfs(e.to)
			path = path[:len(path)-1]
			visited[e.to] = false
		}
	}
	visited[baseIdx] = true
	dfs(baseIdx)
	return routes
}

// admit applies the pre-scoring liquidity floor.
func (b *Builder) admit(r domain.Route) bool {
	if len(r.Hops) < 2 {
		return false
	}
	return r.MinLiquidity() >= b.liquidityFloor
}

// assetArena collects every asset appearing in the quote set into a sorted
// slice plus an index lookup. The base asset is always present.
func assetArena(quotes []domain.Quote, base domain.Asset) ([]domain.Asset, map[domain.Asset]int) {
	set := map[domain.Asset]struct{}{base: {}}
	for _, q := range quotes {
		set[q.Pair.In] = struct{}{}
		set[q.Pair.Out] = struct{}{}
	}
	nodes := make([]domain.Asset, 0, len(set))
	for a := range set {
		nodes = append(nodes, a)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	index := make(map[domain.Asset]int, len(nodes))
	for i, a := range nodes {
		index[a] = i
	}
	return nodes, index
}
