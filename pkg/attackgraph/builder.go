package attackgraph

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

// FullKey is the sub-graph key of a whole-topology traversal.
const FullKey = "full"

// DefaultDecayBase turns a CVSS score into an edge weight: base^-score.
const DefaultDecayBase = 1.2

const (
	opBuildSubnet = "build_subnet"
	opBuildFull   = "build_full"
)

// Flags tune how many edges the traversal admits.
type Flags struct {
	// SingleExploitPerService lets each traversal enter a service once.
	SingleExploitPerService bool
	// SingleEdgeLabel keeps only the first vulnerability found for an edge.
	SingleEdgeLabel bool
}

// Builder generates attack graphs for one topology snapshot. Its inputs are
// read-only, so one Builder may serve concurrent subnet builds.
type Builder struct {
	topo      *topology.Topology
	profiles  map[string]*exploit.Profile
	flags     Flags
	decayBase float64
	pool      *parallel.WorkerPool
	logger    logging.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithFlags sets traversal flags.
func WithFlags(f Flags) Option {
	return func(b *Builder) { b.flags = f }
}

// WithPool builds subnets concurrently on pool.
func WithPool(pool *parallel.WorkerPool) Option {
	return func(b *Builder) { b.pool = pool }
}

// WithDecayBase sets the base of the edge weight.
func WithDecayBase(base float64) Option {
	return func(b *Builder) {
		if base > 1 {
			b.decayBase = base
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder over a topology and its service profiles.
func NewBuilder(topo *topology.Topology, profiles map[string]*exploit.Profile, opts ...Option) *Builder {
	b := &Builder{
		topo:      topo,
		profiles:  profiles,
		decayBase: DefaultDecayBase,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrDefault(b.logger).With(logging.Component("attackgraph"))
	return b
}

// Weight converts a CVSS score into an edge weight in (0, 1].
func Weight(decayBase, score float64) float64 {
	return math.Pow(decayBase, -score)
}

// neighborFunc yields the services an attacker on node can reach.
type neighborFunc func(node string) ([]string, error)

// BuildSubnet traverses one subnet from each of its gateways.
func (b *Builder) BuildSubnet(name string) (*Graph, error) {
	sn, ok := b.topo.Subnet(name)
	if !ok {
		return nil, model.UnknownSubnet(opBuildSubnet, name)
	}

	members := sn.Members()
	within := func(string) ([]string, error) { return members, nil }

	g := NewGraph()
	for _, gw := range sn.Gateways() {
		if err := b.traverse(g, gw, within, opBuildSubnet, name); err != nil {
			return nil, err
		}
	}
	b.logger.Debug("subnet built", logging.Subnet(name),
		logging.Int("vertices", g.Order()), logging.Int("edges", g.Size()))
	return g, nil
}

// BuildFull traverses the whole topology from outside in one pass.
func (b *Builder) BuildFull() (*Graph, error) {
	g := NewGraph()
	if err := b.traverse(g, model.Outside, b.topo.Neighbors, opBuildFull, ""); err != nil {
		return nil, err
	}
	b.logger.Debug("full graph built", logging.Int("vertices", g.Order()), logging.Int("edges", g.Size()))
	return g, nil
}

// seeds returns the footholds a traversal starts from at gateway gw.
func (b *Builder) seeds(gw, op, subnet string) ([]model.Vertex, error) {
	if gw == model.Outside {
		return []model.Vertex{model.Root}, nil
	}
	if b.topo.IsHoneypot(gw) {
		return nil, nil
	}
	profile, ok := b.profiles[gw]
	if !ok {
		return nil, model.NewError(op).Reference().Subnet(subnet).Service(gw).Err()
	}
	levels := profile.PostLevels()
	seeds := make([]model.Vertex, 0, len(levels))
	for _, p := range levels {
		seeds = append(seeds, model.Vertex{Service: gw, Privilege: p})
	}
	return seeds, nil
}

// traverse runs the depth-first expansion from one gateway with an explicit
// stack, adding every admitted edge to g.
func (b *Builder) traverse(g *Graph, gw string, neighbors neighborFunc, op, subnet string) error {
	stack, err := b.seeds(gw, op, subnet)
	if err != nil {
		return err
	}
	exploited := map[string]bool{gw: true}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nbrs, err := neighbors(cur.Service)
		if err != nil {
			return err
		}
		for _, nb := range nbrs {
			if nb == model.Outside {
				continue
			}
			profile, ok := b.profiles[nb]
			if !ok {
				return model.NewError(op).Reference().Subnet(subnet).Service(nb).Err()
			}
			decoy := b.topo.IsHoneypot(nb)

			for _, pre := range model.Privileges(cur.Privilege) {
				for _, id := range profile.ByPre(pre) {
					dst := model.Vertex{Service: nb, Privilege: profile.Post[id]}
					if nb == cur.Service && dst.Privilege <= cur.Privilege {
						continue
					}
					w := Weight(b.decayBase, profile.Score(id))

					var admitted bool
					if b.flags.SingleExploitPerService {
						if exploited[nb] {
							continue
						}
						exploited[nb] = true
						g.link(cur, dst, id, w, false)
						admitted = true
					} else {
						admitted = g.link(cur, dst, id, w, !b.flags.SingleEdgeLabel)
					}
					if admitted && !decoy {
						stack = append(stack, dst)
					}
				}
			}
		}
	}
	return nil
}

// Build generates the sub-graphs of the affected subnets. With a pool every
// subnet is a task and the call waits for all of them; the first failure
// fails the build. Without a pool an affected exposed subnet triggers one
// full traversal stored under FullKey. Empty sub-graphs are dropped.
func (b *Builder) Build(ctx context.Context, affected []string) (map[string]*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subnets := uniqueSorted(affected)
	op := logging.StartTimer(b.logger, "attack graph built", logging.Int("subnets", len(subnets)))

	var (
		result map[string]*Graph
		err    error
	)
	switch {
	case b.pool != nil:
		result, err = b.buildConcurrent(subnets)
	case contains(subnets, model.Exposed):
		var g *Graph
		if g, err = b.BuildFull(); err == nil {
			result = map[string]*Graph{FullKey: g}
		}
	default:
		result, err = b.buildSequential(subnets)
	}
	if err != nil {
		op.EndError(err)
		return nil, err
	}

	for name, g := range result {
		if g.Empty() {
			delete(result, name)
		}
	}
	op.End(logging.Count(len(result)))
	return result, nil
}

func (b *Builder) buildSequential(subnets []string) (map[string]*Graph, error) {
	result := make(map[string]*Graph, len(subnets))
	for _, name := range subnets {
		g, err := b.BuildSubnet(name)
		if err != nil {
			return nil, err
		}
		result[name] = g
	}
	return result, nil
}

func (b *Builder) buildConcurrent(subnets []string) (map[string]*Graph, error) {
	var mu sync.Mutex
	result := make(map[string]*Graph, len(subnets))

	batch := b.pool.NewBatch()
	for _, name := range subnets {
		if err := batch.Go(name, func() error {
			g, err := b.BuildSubnet(name)
			if err != nil {
				return err
			}
			mu.Lock()
			result[name] = g
			mu.Unlock()
			return nil
		}); err != nil {
			_ = batch.Wait()
			return nil, err
		}
	}
	if err := batch.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func contains(names []string, name string) bool {
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}
