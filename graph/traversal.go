package graph

import (
	"errors"

	"github.com/tolelom/hashgraph/event"
)

// ErrCycleDetected is returned by TopologicalSort when the given view
// cannot be linearized — it should never occur for honestly-gossiped
// events, since parent hashes are content-addressed and necessarily
// predate their children, but a malicious or corrupted view could claim
// otherwise.
var ErrCycleDetected = errors.New("graph: cycle detected in event view")

// parentHashes returns the (self, other) parent hashes of e, or the zero
// value twice for a genesis event.
func parentHashes(e *event.Event) (string, string) {
	if e.IsGenesis() {
		return "", ""
	}
	return e.Body.Parents.SelfParent, e.Body.Parents.OtherParent
}

// IsAncestor reports whether ancestor is ancestor-or-self of descendant,
// following both parent edges with an explicit stack rather than
// recursion. Results are memoized: the DAG is append-only, so an
// ancestry relation once computed never changes.
func (g *Graph) IsAncestor(ancestor, descendant string) bool {
	if ancestor == descendant {
		return true
	}
	key := cacheKey{ancestor, descendant}
	if v, ok := g.ancestorCache.Load(key); ok {
		return v.(bool)
	}

	visited := make(map[string]bool)
	stack := []string{descendant}
	found := false
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == ancestor {
			found = true
			break
		}
		ev, ok := g.Get(cur)
		if !ok {
			continue
		}
		sp, op := parentHashes(ev)
		if sp != "" {
			stack = append(stack, sp)
		}
		if op != "" {
			stack = append(stack, op)
		}
	}
	g.ancestorCache.Store(key, found)
	return found
}

// IsSelfAncestor reports whether ancestor is ancestor-or-self of
// descendant along the self-parent chain only.
func (g *Graph) IsSelfAncestor(ancestor, descendant string) bool {
	if ancestor == descendant {
		return true
	}
	cur := descendant
	for {
		ev, ok := g.Get(cur)
		if !ok || ev.IsGenesis() {
			return false
		}
		sp := ev.Body.Parents.SelfParent
		if sp == ancestor {
			return true
		}
		cur = sp
	}
}

// forkVisible reports whether two events by creator, both ancestors of (or
// equal to) from, are mutually non-self-ancestors — i.e. a fork by creator
// is visible looking back from from. The graph-wide IsForked flag is
// checked first so the (more expensive) ancestor walk only runs once a
// fork by creator is known to exist anywhere in the local DAG.
func (g *Graph) forkVisible(from, creator string) bool {
	if !g.IsForked(creator) {
		return false
	}
	var sameCreator []string
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		ev, ok := g.Get(cur)
		if !ok {
			continue
		}
		if ev.Body.Creator == creator {
			sameCreator = append(sameCreator, cur)
		}
		sp, op := parentHashes(ev)
		if sp != "" {
			stack = append(stack, sp)
		}
		if op != "" {
			stack = append(stack, op)
		}
	}
	for i := 0; i < len(sameCreator); i++ {
		for j := i + 1; j < len(sameCreator); j++ {
			if !g.IsSelfAncestor(sameCreator[i], sameCreator[j]) && !g.IsSelfAncestor(sameCreator[j], sameCreator[i]) {
				return true
			}
		}
	}
	return false
}

// Sees reports whether b is an ancestor of a and no fork by b's creator is
// visible within b's own ancestry — a forked creator's chain cannot be
// trusted past the fork point, so events on either side stop being "seen"
// through it.
func (g *Graph) Sees(a, b string) bool {
	key := cacheKey{a, b}
	if v, ok := g.seesCache.Load(key); ok {
		return v.(bool)
	}
	result := g.IsAncestor(b, a)
	if result {
		bev, ok := g.Get(b)
		if ok && g.forkVisible(b, bev.Body.Creator) {
			result = false
		}
	}
	g.seesCache.Store(key, result)
	return result
}

// StronglySees reports whether there exists a set of events with more than
// 2N/3 distinct creators, each of which a sees and which itself sees b.
// The implementation is a single explicit-stack DFS over a's ancestors,
// with an early exit once the threshold is crossed.
func (g *Graph) StronglySees(a, b string) bool {
	threshold := float64(2*g.n) / 3.0

	visited := make(map[string]bool)
	creators := make(map[string]bool)
	stack := []string{a}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		if g.Sees(a, cur) && g.Sees(cur, b) {
			if ev, ok := g.Get(cur); ok {
				creators[ev.Body.Creator] = true
				if float64(len(creators)) > threshold {
					return true
				}
			}
		}

		ev, ok := g.Get(cur)
		if !ok {
			continue
		}
		sp, op := parentHashes(ev)
		if sp != "" {
			stack = append(stack, sp)
		}
		if op != "" {
			stack = append(stack, op)
		}
	}
	return float64(len(creators)) > threshold
}

// TopologicalSort orders the events in view (hash -> event, typically the
// set newly learned from a gossip peer) so that every event appears after
// both of its parents that are also present in view. Parents already
// present locally (isLocal) count as already satisfied. Uses Kahn's
// algorithm.
func TopologicalSort(view map[string]*event.Event, isLocal func(hash string) bool) ([]string, error) {
	remaining := make(map[string]int, len(view))   // hash -> unresolved in-view dependency count
	dependents := make(map[string][]string, len(view)) // hash -> hashes in view that depend on it

	for h, e := range view {
		sp, op := parentHashes(e)
		count := 0
		if sp != "" {
			if _, inView := view[sp]; inView && !isLocal(sp) {
				count++
				dependents[sp] = append(dependents[sp], h)
			}
		}
		if op != "" {
			if _, inView := view[op]; inView && !isLocal(op) {
				count++
				dependents[op] = append(dependents[op], h)
			}
		}
		remaining[h] = count
	}

	queue := make([]string, 0, len(view))
	for h, c := range remaining {
		if c == 0 {
			queue = append(queue, h)
		}
	}

	order := make([]string, 0, len(view))
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		order = append(order, h)
		for _, dep := range dependents[h] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(view) {
		return nil, ErrCycleDetected
	}
	return order, nil
}
