package exploit

import (
	"sort"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

// Profile is the exploitability of one service: the privilege required to use
// each vulnerability and the privilege it grants.
type Profile struct {
	Pre    map[string]model.Privilege
	Post   map[string]model.Privilege
	Scores map[string]float64

	byPre      map[model.Privilege][]string
	postLevels []model.Privilege
}

// NewProfile builds a profile and its lookup indexes. Vulnerabilities missing
// from post default to ADMIN.
func NewProfile(pre, post map[string]model.Privilege, scores map[string]float64) *Profile {
	p := &Profile{
		Pre:    make(map[string]model.Privilege, len(pre)),
		Post:   make(map[string]model.Privilege, len(pre)),
		Scores: make(map[string]float64, len(scores)),
		byPre:  make(map[model.Privilege][]string),
	}
	for id, priv := range pre {
		p.Pre[id] = priv
		if gained, ok := post[id]; ok {
			p.Post[id] = gained
		} else {
			p.Post[id] = model.PrivilegeAdmin
		}
	}
	for id, s := range scores {
		p.Scores[id] = s
	}
	p.index()
	return p
}

// EmptyProfile returns a profile without vulnerabilities.
func EmptyProfile() *Profile {
	return NewProfile(nil, nil, nil)
}

func (p *Profile) index() {
	levels := make(map[model.Privilege]bool)
	for id, priv := range p.Pre {
		p.byPre[priv] = append(p.byPre[priv], id)
		levels[p.Post[id]] = true
	}
	for priv := range p.byPre {
		sort.Strings(p.byPre[priv])
	}
	for priv := range levels {
		p.postLevels = append(p.postLevels, priv)
	}
	sort.Slice(p.postLevels, func(i, j int) bool { return p.postLevels[i] < p.postLevels[j] })
}

// ByPre returns the ids of vulnerabilities usable with exactly priv, sorted.
func (p *Profile) ByPre(priv model.Privilege) []string {
	return p.byPre[priv]
}

// PostLevels returns the distinct privileges the profile can grant, ascending.
func (p *Profile) PostLevels() []model.Privilege {
	return p.postLevels
}

// Len returns the number of classified vulnerabilities.
func (p *Profile) Len() int {
	return len(p.Pre)
}

// Vulnerabilities returns every classified id, sorted.
func (p *Profile) Vulnerabilities() []string {
	ids := make([]string, 0, len(p.Pre))
	for id := range p.Pre {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Score returns the CVSS base score of a vulnerability, 0 if unknown.
func (p *Profile) Score(id string) float64 {
	return p.Scores[id]
}
