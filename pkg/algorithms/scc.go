package algorithms

// Component is one strongly connected component.
type Component[N comparable] struct {
	ID    int
	Nodes []N
}

// SCCResult holds the strongly connected components of a graph.
type SCCResult[N comparable] struct {
	Components     []Component[N]
	NodeComponent  map[N]int
	Largest        *Component[N]
	SingletonCount int
}

// CondensationEdge is an edge of the condensation DAG between two components.
type CondensationEdge struct {
	FromID    int
	ToID      int
	EdgeCount int
}

// tarjanState holds per-node state during Tarjan's DFS.
type tarjanState struct {
	index   int
	lowlink int
	onStack bool
}

// StronglyConnectedComponents finds all SCCs using Tarjan's algorithm in
// O(V+E). Components are numbered in the order they complete, so a
// component's successors always have lower ids.
func StronglyConnectedComponents[N comparable](g Graph[N]) *SCCResult[N] {
	nodes := g.Nodes()
	state := make(map[N]*tarjanState, len(nodes))
	var stack []N
	indexCounter := 0
	result := &SCCResult[N]{NodeComponent: make(map[N]int, len(nodes))}

	var strongconnect func(u N)
	strongconnect = func(u N) {
		state[u] = &tarjanState{index: indexCounter, lowlink: indexCounter, onStack: true}
		indexCounter++
		stack = append(stack, u)

		for _, v := range g.Successors(u) {
			if _, exists := state[v]; !exists {
				strongconnect(v)
				state[u].lowlink = min(state[u].lowlink, state[v].lowlink)
			} else if state[v].onStack {
				state[u].lowlink = min(state[u].lowlink, state[v].index)
			}
		}

		if state[u].lowlink != state[u].index {
			return
		}
		id := len(result.Components)
		var members []N
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			state[w].onStack = false
			members = append(members, w)
			result.NodeComponent[w] = id
			if w == u {
				break
			}
		}
		result.Components = append(result.Components, Component[N]{ID: id, Nodes: members})
	}

	for _, n := range nodes {
		if _, exists := state[n]; !exists {
			strongconnect(n)
		}
	}

	for i := range result.Components {
		c := &result.Components[i]
		if len(c.Nodes) == 1 {
			result.SingletonCount++
		}
		if result.Largest == nil || len(c.Nodes) > len(result.Largest.Nodes) {
			result.Largest = c
		}
	}
	return result
}

// Condensation contracts every component to a node and counts the edges
// between components.
func Condensation[N comparable](g Graph[N], scc *SCCResult[N]) []CondensationEdge {
	type edgeKey struct{ from, to int }
	counts := make(map[edgeKey]int)
	var order []edgeKey

	for _, n := range g.Nodes() {
		from := scc.NodeComponent[n]
		for _, s := range g.Successors(n) {
			to, ok := scc.NodeComponent[s]
			if !ok || to == from {
				continue
			}
			key := edgeKey{from, to}
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
	}

	result := make([]CondensationEdge, 0, len(order))
	for _, key := range order {
		result = append(result, CondensationEdge{FromID: key.from, ToID: key.to, EdgeCount: counts[key]})
	}
	return result
}
