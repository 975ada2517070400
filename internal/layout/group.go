package layout

import "github.com/tomasr8/new-timetable/internal/model"

// Group is an ordered set of entry IDs forming one connected component of the
// overlap graph.
type Group struct {
	ids []int
	set map[int]struct{}
}

func newGroup() Group {
	return Group{set: make(map[int]struct{})}
}

func (g *Group) add(id int) {
	if _, ok := g.set[id]; ok {
		return
	}
	g.set[id] = struct{}{}
	g.ids = append(g.ids, id)
}

// Has reports whether id is a member of g.
func (g Group) Has(id int) bool {
	_, ok := g.set[id]
	return ok
}

// IDs returns the members in discovery order.
func (g Group) IDs() []int {
	out := make([]int, len(g.ids))
	copy(out, g.ids)
	return out
}

// Len returns the number of members.
func (g Group) Len() int {
	return len(g.ids)
}

// adjacent is the edge relation of the implicit overlap graph. Edges are
// evaluated on demand; no edge list is built.
type adjacent func(a, b model.Base) bool

// Groups partitions entries into maximal sets connected by chains of pairwise
// overlap. Groups are emitted in the order of their first member in entries.
func Groups[E model.Entry](entries []E) []Group {
	nodes := bases(entries)
	seen := make(map[int]struct{}, len(nodes))

	var groups []Group
	for _, n := range nodes {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		g := newGroup()
		g.add(n.ID)
		seen[n.ID] = struct{}{}
		visit(n, nodes, &g, seen, Overlaps)
		groups = append(groups, g)
	}
	return groups
}

// GroupOf returns the component reachable from entry within candidates. The
// entry's own ID is never part of the result, so callers can pass either the
// full collection or one that already excludes the entry.
func GroupOf[E model.Entry](entry model.Base, candidates []E) Group {
	g := newGroup()
	seen := map[int]struct{}{entry.ID: {}}
	visit(entry, bases(candidates), &g, seen, Overlaps)
	return g
}

// visit walks depth-first from curr, adding every unvisited node that overlaps
// any node already reached.
func visit(curr model.Base, nodes []model.Base, g *Group, seen map[int]struct{}, adj adjacent) {
	for _, n := range nodes {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		if !adj(curr, n) {
			continue
		}
		seen[n.ID] = struct{}{}
		g.add(n.ID)
		visit(n, nodes, g, seen, adj)
	}
}

func bases[E model.Entry](entries []E) []model.Base {
	out := make([]model.Base, len(entries))
	for i, e := range entries {
		out[i] = e.Base()
	}
	return out
}

// Members returns the entries of collection belonging to g, in collection
// order.
func Members[E model.Entry](g Group, collection []E) []E {
	out := make([]E, 0, g.Len())
	for _, e := range collection {
		if g.Has(e.Base().ID) {
			out = append(out, e)
		}
	}
	return out
}

// Without returns the entries of collection that are not in g and whose ID is
// not one of skip.
func Without[E model.Entry](g Group, collection []E, skip ...int) []E {
	out := make([]E, 0, len(collection))
outer:
	for _, e := range collection {
		id := e.Base().ID
		if g.Has(id) {
			continue
		}
		for _, s := range skip {
			if id == s {
				continue outer
			}
		}
		out = append(out, e)
	}
	return out
}
