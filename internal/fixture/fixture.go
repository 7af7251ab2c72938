// Package fixture provides small topologies with hand-written exploitability
// profiles for tests across the pipeline packages.
package fixture

import (
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

// Vuln is a pre-classified vulnerability.
type Vuln struct {
	ID    string
	Pre   model.Privilege
	Post  model.Privilege
	Score float64
}

// Profile builds an exploitability profile from classified vulnerabilities.
func Profile(vulns ...Vuln) *exploit.Profile {
	pre := make(map[string]model.Privilege, len(vulns))
	post := make(map[string]model.Privilege, len(vulns))
	scores := make(map[string]float64, len(vulns))
	for _, v := range vulns {
		pre[v.ID] = v.Pre
		post[v.ID] = v.Post
		scores[v.ID] = v.Score
	}
	return exploit.NewProfile(pre, post, scores)
}

// Scenario is a topology with a profile for every service.
type Scenario struct {
	Topology *topology.Topology
	Profiles map[string]*exploit.Profile
}

func mustTopology(services []topology.Service) *topology.Topology {
	topo, err := topology.New(services)
	if err != nil {
		panic(fmt.Sprintf("fixture topology: %v", err))
	}
	return topo
}

// WebDB is an exposed web service and a database on one subnet. CVE-1 gives
// ADMIN on web without privileges, CVE-2 gives USER on db to an attacker
// holding USER or more.
func WebDB() Scenario {
	return Scenario{
		Topology: mustTopology([]topology.Service{
			{Name: "web", Image: "nginx:1.19", Networks: []string{"default"}, Exposed: true},
			{Name: "db", Image: "postgres:13", Networks: []string{"default"}},
		}),
		Profiles: map[string]*exploit.Profile{
			"web": Profile(Vuln{ID: "CVE-1", Pre: model.PrivilegeNone, Post: model.PrivilegeAdmin, Score: 10}),
			"db":  Profile(Vuln{ID: "CVE-2", Pre: model.PrivilegeUser, Post: model.PrivilegeUser, Score: 6.5}),
		},
	}
}

// ThreeTier is web on front, api bridging front and back, db and cache on
// back. worker on back has no vulnerabilities.
func ThreeTier() Scenario {
	return Scenario{
		Topology: mustTopology([]topology.Service{
			{Name: "web", Image: "nginx:1.19", Networks: []string{"front"}, Exposed: true},
			{Name: "api", Image: "api:2.1", Networks: []string{"front", "back"}},
			{Name: "db", Image: "postgres:13", Networks: []string{"back"}},
			{Name: "cache", Image: "redis:6", Networks: []string{"back"}},
			{Name: "worker", Image: "worker:1.0", Networks: []string{"back"}},
		}),
		Profiles: map[string]*exploit.Profile{
			"web": Profile(
				Vuln{ID: "CVE-2021-0001", Pre: model.PrivilegeNone, Post: model.PrivilegeLowUser, Score: 7.5},
				Vuln{ID: "CVE-2021-0002", Pre: model.PrivilegeLowUser, Post: model.PrivilegeLowAdmin, Score: 4.6},
			),
			"api": Profile(
				Vuln{ID: "CVE-2021-0100", Pre: model.PrivilegeNone, Post: model.PrivilegeUser, Score: 9.3},
				Vuln{ID: "CVE-2021-0101", Pre: model.PrivilegeLowUser, Post: model.PrivilegeUser, Score: 5.0},
			),
			"db": Profile(
				Vuln{ID: "CVE-2021-0200", Pre: model.PrivilegeUser, Post: model.PrivilegeAdmin, Score: 6.8},
			),
			"cache": Profile(
				Vuln{ID: "CVE-2021-0300", Pre: model.PrivilegeNone, Post: model.PrivilegeLowAdmin, Score: 10},
				Vuln{ID: "CVE-2021-0301", Pre: model.PrivilegeNone, Post: model.PrivilegeLowAdmin, Score: 2.1},
			),
			"worker": exploit.EmptyProfile(),
		},
	}
}

// Random generates a reproducible scenario of two to seven services over up
// to three subnets. Service s0 is always exposed.
func Random(seed int64) Scenario {
	r := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
	networks := []string{"n0", "n1", "n2"}

	n := 2 + r.IntN(6)
	services := make([]topology.Service, 0, n)
	profiles := make(map[string]*exploit.Profile, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("s%d", i)
		nets := []string{networks[r.IntN(len(networks))]}
		if r.IntN(3) == 0 {
			nets = append(nets, networks[r.IntN(len(networks))])
		}
		services = append(services, topology.Service{
			Name:     name,
			Image:    name + ":latest",
			Networks: nets,
			Exposed:  i == 0 || r.IntN(4) == 0,
		})

		var vulns []Vuln
		for j := r.IntN(4); j > 0; j-- {
			vulns = append(vulns, Vuln{
				ID:    fmt.Sprintf("CVE-%s-%d", name, j),
				Pre:   model.Privilege(r.IntN(int(model.MaxPrivilege) + 1)),
				Post:  model.Privilege(r.IntN(int(model.MaxPrivilege) + 1)),
				Score: float64(r.IntN(101)) / 10,
			})
		}
		profiles[name] = Profile(vulns...)
	}
	return Scenario{Topology: mustTopology(services), Profiles: profiles}
}

// WithHoneypot adds a decoy on the subnets of target, exposed included, and
// returns the new scenario and the affected subnets.
func (s Scenario) WithHoneypot(name, target string, decoy *exploit.Profile) (Scenario, []string) {
	svc, ok := s.Topology.Service(target)
	if !ok {
		panic("fixture: unknown honeypot target " + target)
	}
	topo, affected, err := s.Topology.WithService(topology.Service{
		Name:     name,
		Image:    "nginx",
		Networks: svc.Networks,
		Exposed:  svc.Exposed,
		Honeypot: true,
	})
	if err != nil {
		panic(fmt.Sprintf("fixture honeypot: %v", err))
	}
	profiles := make(map[string]*exploit.Profile, len(s.Profiles)+1)
	for k, v := range s.Profiles {
		profiles[k] = v
	}
	profiles[name] = decoy
	return Scenario{Topology: topo, Profiles: profiles}, affected
}
