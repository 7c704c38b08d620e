// Package graph builds the rule dependency graph from a storage snapshot.
//
// Edges point child-ward: an edge A -> B means B depends on A and must not
// run before A. The builder is pure; cycles are tolerated here and broken at
// execution time.
package graph

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/brmkit/brm/internal/storage"
)

// composite logic expressions reference other rules as Rule<digits>.
var ruleTokenRe = regexp.MustCompile(`Rule(\d+)`)

// Graph is the adjacency view over one snapshot of the rule tables.
type Graph struct {
	// Adjacency maps a rule id to the ids that depend on it.
	Adjacency map[int64][]int64

	inbound map[int64]int
	nodes   map[int64]bool
}

// Build assembles the graph from the four edge sources: parent links on the
// rules themselves, global-critical links, conflict pairs, and composite
// logic expressions.
func Build(snap *storage.GraphSnapshot) *Graph {
	g := &Graph{
		Adjacency: make(map[int64][]int64),
		inbound:   make(map[int64]int),
		nodes:     make(map[int64]bool),
	}

	for _, r := range snap.Rules {
		g.nodes[r.ID] = true
		if r.ParentRuleID != nil {
			g.addEdge(*r.ParentRuleID, r.ID)
		}
	}

	for _, l := range snap.Links {
		g.addEdge(l.GCRRuleID, l.TargetRuleID)
	}

	// The higher-priority side of a conflict gates the other. Equal or
	// unrecognized priorities fall back to rule1 gating rule2.
	for _, c := range snap.Conflicts {
		if c.Priority == 2 {
			g.addEdge(c.RuleID2, c.RuleID1)
		} else {
			g.addEdge(c.RuleID1, c.RuleID2)
		}
	}

	for _, comp := range snap.Composites {
		for _, m := range ruleTokenRe.FindAllStringSubmatch(comp.LogicExpr, -1) {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil || id == comp.RuleID {
				continue
			}
			g.addEdge(id, comp.RuleID)
		}
	}

	return g
}

func (g *Graph) addEdge(from, to int64) {
	for _, existing := range g.Adjacency[from] {
		if existing == to {
			return
		}
	}
	g.Adjacency[from] = append(g.Adjacency[from], to)
	g.inbound[to]++
	g.nodes[from] = true
	g.nodes[to] = true
}

// Roots returns the rule ids with no inbound edges, in ascending order.
// These are the default BFS starting points.
func (g *Graph) Roots() []int64 {
	var roots []int64
	for id := range g.nodes {
		if g.inbound[id] == 0 {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// Neighbors returns the ids that depend on id.
func (g *Graph) Neighbors(id int64) []int64 {
	return g.Adjacency[id]
}

// Descendants returns every id reachable from start, depth first, excluding
// start itself. Cycles are handled by the seen set.
func (g *Graph) Descendants(start int64) []int64 {
	seen := map[int64]bool{start: true}
	var out []int64
	stack := append([]int64(nil), g.Adjacency[start]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		stack = append(stack, g.Adjacency[id]...)
	}
	return out
}

// Contains reports whether id appears in the graph, either as a rule row or
// as an edge endpoint.
func (g *Graph) Contains(id int64) bool {
	return g.nodes[id]
}
