// Package topology describes which services share which subnets and which of
// them act as gateways between subnets or to the outside world.
//
// A Topology is immutable: WithService and WithoutService return a new value
// together with the subnets whose attack graphs the change invalidates.
package topology

import (
	"fmt"
	"slices"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

// DefaultNetwork is used for services that declare no network.
const DefaultNetwork = "default"

// Service is a named workload.
type Service struct {
	Name     string   `json:"name"`
	Image    string   `json:"image"`
	Networks []string `json:"networks"` // real subnets only; never contains model.Exposed
	Exposed  bool     `json:"exposed"`  // publishes at least one port
	Honeypot bool     `json:"honeypot,omitempty"`
}

// Subnet is a group of services that can reach each other directly.
type Subnet struct {
	Name     string
	members  map[string]struct{}
	gateways map[string]struct{}
}

// Members returns the sorted member names.
func (s *Subnet) Members() []string {
	return sortedKeys(s.members)
}

// Gateways returns the sorted gateway names.
func (s *Subnet) Gateways() []string {
	return sortedKeys(s.gateways)
}

// HasMember reports whether name belongs to the subnet.
func (s *Subnet) HasMember(name string) bool {
	_, ok := s.members[name]
	return ok
}

// Topology is a read-only snapshot of services and subnets.
type Topology struct {
	services map[string]Service
	subnets  map[string]*Subnet
	gateways map[string]struct{}
}

// New builds a topology from a list of services. Declared networks without
// members are kept as empty subnets.
func New(services []Service, declaredNetworks ...string) (*Topology, error) {
	t := &Topology{
		services: make(map[string]Service, len(services)),
		subnets:  make(map[string]*Subnet),
		gateways: make(map[string]struct{}),
	}
	t.subnets[model.Exposed] = newSubnet(model.Exposed)
	t.subnets[model.Exposed].members[model.Outside] = struct{}{}
	t.subnets[model.Exposed].gateways[model.Outside] = struct{}{}

	for _, n := range declaredNetworks {
		if n == model.Exposed {
			return nil, fmt.Errorf("network name %q is reserved", n)
		}
		if _, ok := t.subnets[n]; !ok {
			t.subnets[n] = newSubnet(n)
		}
	}

	for _, svc := range services {
		if err := t.add(svc); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func newSubnet(name string) *Subnet {
	return &Subnet{
		Name:     name,
		members:  make(map[string]struct{}),
		gateways: make(map[string]struct{}),
	}
}

func (t *Topology) add(svc Service) error {
	switch {
	case svc.Name == "":
		return fmt.Errorf("service without name")
	case svc.Name == model.Outside:
		return fmt.Errorf("service name %q is reserved", svc.Name)
	}
	if _, exists := t.services[svc.Name]; exists {
		return fmt.Errorf("service %q already defined in topology", svc.Name)
	}

	networks := make([]string, 0, len(svc.Networks))
	for _, n := range svc.Networks {
		if n == model.Exposed {
			return fmt.Errorf("service %q: network name %q is reserved", svc.Name, n)
		}
		if !slices.Contains(networks, n) {
			networks = append(networks, n)
		}
	}
	if len(networks) == 0 {
		networks = append(networks, DefaultNetwork)
	}
	svc.Networks = networks
	t.services[svc.Name] = svc

	gateway := len(networks) > 1 || svc.Exposed
	for _, n := range networks {
		sn, ok := t.subnets[n]
		if !ok {
			sn = newSubnet(n)
			t.subnets[n] = sn
		}
		sn.members[svc.Name] = struct{}{}
		if gateway {
			sn.gateways[svc.Name] = struct{}{}
		}
	}
	if svc.Exposed {
		exposed := t.subnets[model.Exposed]
		exposed.members[svc.Name] = struct{}{}
		exposed.gateways[svc.Name] = struct{}{}
	}
	if gateway {
		t.gateways[svc.Name] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Topology) Clone() *Topology {
	c := &Topology{
		services: make(map[string]Service, len(t.services)),
		subnets:  make(map[string]*Subnet, len(t.subnets)),
		gateways: make(map[string]struct{}, len(t.gateways)),
	}
	for name, svc := range t.services {
		svc.Networks = slices.Clone(svc.Networks)
		c.services[name] = svc
	}
	for name, sn := range t.subnets {
		cp := newSubnet(name)
		for m := range sn.members {
			cp.members[m] = struct{}{}
		}
		for g := range sn.gateways {
			cp.gateways[g] = struct{}{}
		}
		c.subnets[name] = cp
	}
	for g := range t.gateways {
		c.gateways[g] = struct{}{}
	}
	return c
}

// WithService returns a new topology including svc and the subnets it touches.
func (t *Topology) WithService(svc Service) (*Topology, []string, error) {
	next := t.Clone()
	if err := next.add(svc); err != nil {
		return nil, nil, err
	}
	return next, next.SubnetsOf(svc.Name), nil
}

// WithoutService returns a new topology without the named service and the
// subnets it belonged to.
func (t *Topology) WithoutService(name string) (*Topology, []string, error) {
	if _, ok := t.services[name]; !ok {
		return nil, nil, model.UnknownService("remove_service", name)
	}
	affected := t.SubnetsOf(name)

	next := t.Clone()
	delete(next.services, name)
	delete(next.gateways, name)
	for _, sn := range next.subnets {
		delete(sn.members, name)
		delete(sn.gateways, name)
	}
	return next, affected, nil
}

// Service returns a service by name.
func (t *Topology) Service(name string) (Service, bool) {
	svc, ok := t.services[name]
	return svc, ok
}

// ServiceNames returns every service name, sorted. outside is not included.
func (t *Topology) ServiceNames() []string {
	return sortedKeys(t.services)
}

// Subnet returns a subnet by name.
func (t *Topology) Subnet(name string) (*Subnet, bool) {
	sn, ok := t.subnets[name]
	return sn, ok
}

// SubnetNames returns every subnet name including the exposed pseudo-subnet, sorted.
func (t *Topology) SubnetNames() []string {
	return sortedKeys(t.subnets)
}

// SubnetsOf returns the subnets a service belongs to, including exposed for
// services with published ports. outside belongs to exposed only.
func (t *Topology) SubnetsOf(name string) []string {
	if name == model.Outside {
		return []string{model.Exposed}
	}
	svc, ok := t.services[name]
	if !ok {
		return nil
	}
	subnets := slices.Clone(svc.Networks)
	if svc.Exposed {
		subnets = append(subnets, model.Exposed)
	}
	slices.Sort(subnets)
	return subnets
}

// IsGateway reports whether a service bridges subnets or faces the outside.
func (t *Topology) IsGateway(name string) bool {
	_, ok := t.gateways[name]
	return ok
}

// GatewayServices returns all gateway services, sorted.
func (t *Topology) GatewayServices() []string {
	return sortedKeys(t.gateways)
}

// IsHoneypot reports whether the named service is a decoy.
func (t *Topology) IsHoneypot(name string) bool {
	return t.services[name].Honeypot
}

// Neighbors returns every service sharing a subnet with name, including name
// itself. For outside these are the members of the exposed subnet.
func (t *Topology) Neighbors(name string) ([]string, error) {
	if name != model.Outside {
		if _, ok := t.services[name]; !ok {
			return nil, model.UnknownService("neighbors", name)
		}
	}
	seen := make(map[string]struct{})
	for _, sn := range t.SubnetsOf(name) {
		for m := range t.subnets[sn].members {
			seen[m] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
