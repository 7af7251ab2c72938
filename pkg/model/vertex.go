package model

import "fmt"

// Outside is the pseudo-service representing the external attacker.
const Outside = "outside"

// Exposed is the pseudo-subnet joining outside with every service that publishes a port.
const Exposed = "exposed"

// Vertex is an attacker foothold: a service held at a privilege level.
type Vertex struct {
	Service   string    `json:"service"`
	Privilege Privilege `json:"privilege"`
}

// Root is the vertex every attack starts from.
var Root = Vertex{Service: Outside, Privilege: PrivilegeAdmin}

func (v Vertex) String() string {
	return fmt.Sprintf("%s(%s)", v.Service, v.Privilege)
}

// Less orders vertices by service, then privilege.
func (v Vertex) Less(o Vertex) bool {
	if v.Service != o.Service {
		return v.Service < o.Service
	}
	return v.Privilege < o.Privilege
}

// EdgeKey identifies a directed edge between two vertices.
type EdgeKey struct {
	From Vertex
	To   Vertex
}

func (k EdgeKey) String() string {
	return k.From.String() + "|" + k.To.String()
}

// Less orders keys by source, then destination.
func (k EdgeKey) Less(o EdgeKey) bool {
	if k.From != o.From {
		return k.From.Less(o.From)
	}
	return k.To.Less(o.To)
}

// SelfLoop reports whether both ends are on the same service.
func (k EdgeKey) SelfLoop() bool {
	return k.From.Service == k.To.Service
}

// ServicePair identifies an edge of the privilege-collapsed graph.
type ServicePair struct {
	From string
	To   string
}

func (p ServicePair) String() string {
	return p.From + "|" + p.To
}
