package norms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry stores norms keyed by identifier together with the strict partial
// order over their priority groups. The registry itself is mutable; every
// evaluation run works from an immutable Snapshot.
type Registry struct {
	mu    sync.RWMutex
	norms map[string]Norm
	order []string              // norm registration order
	edges map[string][]string   // higher group -> lower groups
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		norms: make(map[string]Norm),
		edges: make(map[string][]string),
	}
}

// Rank declares that every norm in group higher strictly outranks every norm
// in group lower. Adding an edge that closes a cycle fails with
// *PriorityCycleError and leaves the order unchanged.
func (r *Registry) Rank(higher, lower string) error {
	if higher == "" || lower == "" {
		return fmt.Errorf("rank: empty group name")
	}
	if higher == lower {
		return &PriorityCycleError{Cycle: []string{higher, lower}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.edges[higher] = append(r.edges[higher], lower)
	if cycle := findCycle(r.edges); cycle != nil {
		// Roll back the offending edge.
		lows := r.edges[higher]
		r.edges[higher] = lows[:len(lows)-1]
		return &PriorityCycleError{Cycle: cycle}
	}
	return nil
}

// Register adds a norm. The ID must be unique and the consequence non-nil.
func (r *Registry) Register(n Norm) error {
	if n.ID == "" {
		return fmt.Errorf("register: norm ID required")
	}
	if n.Consequence == nil {
		return fmt.Errorf("register: norm %q has no consequence formula", n.ID)
	}
	if n.Group == "" {
		return fmt.Errorf("register: norm %q has no priority group", n.ID)
	}
	switch n.Kind {
	case Obligation, Prohibition, Permission, Requirement:
	default:
		return fmt.Errorf("register: norm %q has invalid kind %d", n.ID, int(n.Kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.norms[n.ID]; ok {
		return fmt.Errorf("register: norm %q already registered", n.ID)
	}
	r.norms[n.ID] = n
	r.order = append(r.order, n.ID)
	return nil
}

// Remove deletes a norm by ID, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.norms[id]; !ok {
		return false
	}
	delete(r.norms, id)
	for i, x := range r.order {
		if x == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Replace swaps a registered norm for a new definition with the same ID.
func (r *Registry) Replace(n Norm) error {
	r.mu.Lock()
	_, ok := r.norms[n.ID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("replace: norm %q not registered", n.ID)
	}
	r.Remove(n.ID)
	return r.Register(n)
}

// Snapshot captures the current norms and priority order as an immutable
// Set. The snapshot carries a fresh run ID for auditability.
func (r *Registry) Snapshot() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()

	norms := make([]Norm, 0, len(r.order))
	for _, id := range r.order {
		norms = append(norms, r.norms[id])
	}
	edges := make(map[string][]string, len(r.edges))
	for k, v := range r.edges {
		edges[k] = append([]string(nil), v...)
	}
	return newSet(uuid.NewString(), norms, edges)
}

// findCycle looks for any cycle in the group DAG and returns one witness
// path, or nil.
func findCycle(edges map[string][]string) []string {
	const (
		unseen = 0
		onPath = 1
		done   = 2
	)
	state := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(g string) bool
	visit = func(g string) bool {
		state[g] = onPath
		path = append(path, g)
		for _, next := range edges[g] {
			switch state[next] {
			case onPath:
				// Slice out the cycle from the current path.
				for i, x := range path {
					if x == next {
						cycle = append(append([]string(nil), path[i:]...), next)
						return true
					}
				}
			case unseen:
				if visit(next) {
					return true
				}
			}
		}
		state[g] = done
		path = path[:len(path)-1]
		return false
	}

	groups := make([]string, 0, len(edges))
	for g := range edges {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		if state[g] == unseen && visit(g) {
			return cycle
		}
	}
	return nil
}
