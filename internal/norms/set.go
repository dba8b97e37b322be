package norms

import "sort"

// Group is one priority group with its member norms in registration order.
type Group struct {
	Tag   string
	Norms []Norm
}

// Set is an immutable snapshot of a norm registry: the norms, the priority
// layering, and the run ID that stamps every derived admissible set.
type Set struct {
	id     string
	norms  []Norm
	edges  map[string][]string
	layers [][]Group
}

func newSet(id string, norms []Norm, edges map[string][]string) *Set {
	s := &Set{id: id, norms: norms, edges: edges}
	s.layers = layerGroups(norms, edges)
	return s
}

// ID returns the snapshot's run identifier.
func (s *Set) ID() string { return s.id }

// Norms returns the snapshot's norms in registration order.
func (s *Set) Norms() []Norm { return append([]Norm(nil), s.norms...) }

// Len returns the number of norms in the snapshot.
func (s *Set) Len() int { return len(s.norms) }

// Norm looks up a norm by ID.
func (s *Set) Norm(id string) (Norm, bool) {
	for _, n := range s.norms {
		if n.ID == id {
			return n, true
		}
	}
	return Norm{}, false
}

// Layers returns the priority layering, highest first. Each layer holds the
// groups that are maximal once all strictly higher layers are removed;
// groups within one layer are mutually incomparable and are sorted by tag
// for determinism.
func (s *Set) Layers() [][]Group {
	out := make([][]Group, len(s.layers))
	for i, layer := range s.layers {
		out[i] = append([]Group(nil), layer...)
	}
	return out
}

// Outranks reports whether group a is strictly above group b in the
// transitive priority order.
func (s *Set) Outranks(a, b string) bool {
	seen := map[string]bool{}
	stack := []string{a}
	for len(stack) > 0 {
		g := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range s.edges[g] {
			if next == b {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Without returns a copy of the snapshot with one norm removed, under a
// fresh ID. Used by the Required query, which compares the admissible set
// with and without a norm's defining constraint.
func (s *Set) Without(normID string) *Set {
	kept := make([]Norm, 0, len(s.norms))
	for _, n := range s.norms {
		if n.ID != normID {
			kept = append(kept, n)
		}
	}
	return newSet(s.id+"/without/"+normID, kept, s.edges)
}

// With returns a copy of the snapshot with one norm added, under a fresh ID.
func (s *Set) With(n Norm) *Set {
	return newSet(s.id+"/with/"+n.ID, append(append([]Norm(nil), s.norms...), n), s.edges)
}

// layerGroups performs Kahn-style topological layering over the groups that
// actually contain norms. Edges to or from empty groups still shape the
// order (a declared rank is a declared rank), but empty groups produce no
// layer entries.
func layerGroups(norms []Norm, edges map[string][]string) [][]Group {
	members := make(map[string][]Norm)
	for _, n := range norms {
		members[n.Group] = append(members[n.Group], n)
	}

	// Collect every group mentioned by a norm or an edge.
	all := make(map[string]bool)
	for g := range members {
		all[g] = true
	}
	for hi, lows := range edges {
		all[hi] = true
		for _, lo := range lows {
			all[lo] = true
		}
	}

	indeg := make(map[string]int, len(all))
	for g := range all {
		indeg[g] = 0
	}
	for _, lows := range edges {
		for _, lo := range lows {
			indeg[lo]++
		}
	}

	remaining := len(all)
	var layers [][]Group
	for remaining > 0 {
		var ready []string
		for g := range all {
			if indeg[g] == 0 {
				ready = append(ready, g)
			}
		}
		if len(ready) == 0 {
			// Cycle: Rank() prevents this, but never loop forever.
			break
		}
		sort.Strings(ready)

		var layer []Group
		for _, g := range ready {
			if ns := members[g]; len(ns) > 0 {
				layer = append(layer, Group{Tag: g, Norms: ns})
			}
		}
		if len(layer) > 0 {
			layers = append(layers, layer)
		}

		for _, g := range ready {
			for _, lo := range edges[g] {
				indeg[lo]--
			}
			delete(all, g)
			delete(indeg, g)
			remaining--
		}
	}
	return layers
}
