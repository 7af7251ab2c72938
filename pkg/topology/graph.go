package topology

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

// ConnectivityGraph is the undirected service-level view of a topology:
// two services are adjacent when they share a subnet, and outside is
// adjacent to every exposed service.
type ConnectivityGraph struct {
	g graph.Graph[string, string]
}

// GatewayGraph is the undirected subnet-level view: subnets are vertices and
// every gateway joining two subnets is an edge labelled with its name.
type GatewayGraph struct {
	g graph.Graph[string, string]
}

// ConnectivityGraph builds the service adjacency graph.
func (t *Topology) ConnectivityGraph() (*ConnectivityGraph, error) {
	g := graph.New(graph.StringHash)

	if err := addVertex(g, model.Outside); err != nil {
		return nil, err
	}
	for _, name := range t.ServiceNames() {
		if err := addVertex(g, name); err != nil {
			return nil, err
		}
	}

	for _, sn := range t.SubnetNames() {
		members := t.subnets[sn].Members()
		for i, a := range members {
			for _, b := range members[i+1:] {
				if err := addEdge(g, a, b); err != nil {
					return nil, fmt.Errorf("connect %s and %s in %s: %w", a, b, sn, err)
				}
			}
		}
	}
	return &ConnectivityGraph{g: g}, nil
}

// Degree returns the number of services adjacent to name.
func (c *ConnectivityGraph) Degree(name string) (int, error) {
	adjacency, err := c.g.AdjacencyMap()
	if err != nil {
		return 0, err
	}
	neighbours, ok := adjacency[name]
	if !ok {
		return 0, model.UnknownService("degree", name)
	}
	return len(neighbours), nil
}

// Degrees returns the degree of every vertex.
func (c *ConnectivityGraph) Degrees() (map[string]int, error) {
	adjacency, err := c.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	degrees := make(map[string]int, len(adjacency))
	for v, neighbours := range adjacency {
		degrees[v] = len(neighbours)
	}
	return degrees, nil
}

// Order returns the number of vertices.
func (c *ConnectivityGraph) Order() (int, error) {
	return c.g.Order()
}

// Size returns the number of edges.
func (c *ConnectivityGraph) Size() (int, error) {
	return c.g.Size()
}

// Edges returns every adjacent pair once, ordered by name.
func (c *ConnectivityGraph) Edges() ([][2]string, error) {
	return undirectedEdges(c.g)
}

// GatewayGraph builds the subnet adjacency graph.
func (t *Topology) GatewayGraph() (*GatewayGraph, error) {
	g := graph.New(graph.StringHash)
	for _, sn := range t.SubnetNames() {
		if err := addVertex(g, sn); err != nil {
			return nil, err
		}
	}

	for _, name := range t.GatewayServices() {
		subnets := t.SubnetsOf(name)
		for i, a := range subnets {
			for _, b := range subnets[i+1:] {
				err := addEdge(g, a, b, graph.EdgeAttribute("gateway", name))
				if err != nil {
					return nil, fmt.Errorf("link %s and %s via %s: %w", a, b, name, err)
				}
			}
		}
	}
	return &GatewayGraph{g: g}, nil
}

// Gateway returns the service labelling the edge between two subnets.
func (gg *GatewayGraph) Gateway(a, b string) (string, bool) {
	e, err := gg.g.Edge(a, b)
	if err != nil {
		return "", false
	}
	return e.Properties.Attributes["gateway"], true
}

// Edges returns every linked subnet pair once, ordered by name.
func (gg *GatewayGraph) Edges() ([][2]string, error) {
	return undirectedEdges(gg.g)
}

func addVertex(g graph.Graph[string, string], name string) error {
	if err := g.AddVertex(name); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return err
	}
	return nil
}

// addEdge tolerates duplicates; the first edge added between a pair wins.
func addEdge(g graph.Graph[string, string], a, b string, opts ...func(*graph.EdgeProperties)) error {
	if err := g.AddEdge(a, b, opts...); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return err
	}
	return nil
}

func undirectedEdges(g graph.Graph[string, string]) ([][2]string, error) {
	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	var edges [][2]string
	for _, a := range sortedKeys(adjacency) {
		for _, b := range sortedKeys(adjacency[a]) {
			if a < b {
				edges = append(edges, [2]string{a, b})
			}
		}
	}
	return edges, nil
}
