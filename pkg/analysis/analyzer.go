package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/defense"
	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/metrics"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
	"github.com/dd0wney/cluso-attackgraph/pkg/risk"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

// Pipeline stage names, used in logs and metrics.
const (
	StageProfiles    = "build_profiles"
	StageAttackGraph = "build_attack_graph"
	StageMerge       = "merge"
	StageUpdate      = "update_subnets"
	StageDefence     = "gen_defence_list"
	StageDeploy      = "deploy_honeypot"
)

var (
	// ErrNoAttackGraph is returned by operations that need a built attack graph.
	ErrNoAttackGraph = errors.New("attack graph not built")
	// ErrNoRisk is returned by operations that need the merged graph.
	ErrNoRisk = errors.New("merged graph not computed")
)

// VulnerabilitySource resolves the vulnerabilities of container images.
type VulnerabilitySource interface {
	Load(ctx context.Context, images []string) (map[string][]model.Vulnerability, error)
}

// Analyzer runs the pipeline over one topology and applies incremental
// changes. Operations are serialized; State may be read concurrently.
type Analyzer struct {
	source    VulnerabilitySource
	rules     exploit.RuleSet
	flags     attackgraph.Flags
	decayBase float64
	pool      *parallel.WorkerPool
	logger    logging.Logger
	metrics   *metrics.Registry

	mu    sync.RWMutex
	state *State
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRules sets the classification rules.
func WithRules(rs exploit.RuleSet) Option {
	return func(a *Analyzer) { a.rules = rs }
}

// WithFlags sets the traversal flags.
func WithFlags(f attackgraph.Flags) Option {
	return func(a *Analyzer) { a.flags = f }
}

// WithDecayBase sets the base of the edge weight.
func WithDecayBase(base float64) Option {
	return func(a *Analyzer) { a.decayBase = base }
}

// WithPool builds subnets concurrently.
func WithPool(pool *parallel.WorkerPool) Option {
	return func(a *Analyzer) { a.pool = pool }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics sets the metrics registry. The default registry is used otherwise.
func WithMetrics(r *metrics.Registry) Option {
	return func(a *Analyzer) { a.metrics = r }
}

// WithProfiles starts from precomputed profiles; BuildProfiles is then only
// needed for services added later.
func WithProfiles(profiles map[string]*exploit.Profile) Option {
	return func(a *Analyzer) { a.state.Profiles = profiles }
}

// New creates an analyzer for a topology.
func New(topo *topology.Topology, source VulnerabilitySource, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:    source,
		decayBase: attackgraph.DefaultDecayBase,
		state:     NewState(topo, nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDefault(a.logger).With(logging.Component("analysis"))
	if a.metrics == nil {
		a.metrics = metrics.DefaultRegistry()
	}
	return a
}

// State returns the current snapshot.
func (a *Analyzer) State() *State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// update runs fn on the current snapshot and publishes its result.
func (a *Analyzer) update(stage string, fn func(*State) (*State, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	next, err := fn(a.state)
	a.metrics.RecordStage(stage, time.Since(start), err)
	if err != nil {
		return err
	}
	a.state = next
	return nil
}

func (a *Analyzer) builder(s *State) *attackgraph.Builder {
	return attackgraph.NewBuilder(s.Topology, s.Profiles,
		attackgraph.WithFlags(a.flags),
		attackgraph.WithDecayBase(a.decayBase),
		attackgraph.WithPool(a.pool),
		attackgraph.WithLogger(a.logger),
	)
}

// Run executes the whole pipeline: profiles (unless given), attack graph,
// merge.
func (a *Analyzer) Run(ctx context.Context) (*State, error) {
	if a.State().Profiles == nil {
		if err := a.BuildProfiles(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.BuildAttackGraph(ctx); err != nil {
		return nil, err
	}
	if err := a.Merge(ctx); err != nil {
		return nil, err
	}
	return a.State(), nil
}

// BuildProfiles classifies every service of the topology.
func (a *Analyzer) BuildProfiles(ctx context.Context) error {
	return a.update(StageProfiles, func(s *State) (*State, error) {
		images := imagesOf(s.Topology, s.Topology.ServiceNames())
		vulns, err := a.load(ctx, images)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StageProfiles, err)
		}
		profiles, err := exploit.BuildProfiles(ctx, s.Topology, vulns, a.rules, a.logger)
		if err != nil {
			return nil, err
		}

		total := 0
		for _, p := range profiles {
			total += p.Len()
		}
		a.metrics.SetProfiles(len(profiles), total)

		next := s.derive()
		next.Profiles = profiles
		return next, nil
	})
}

// BuildAttackGraph generates the sub-graph of every subnet and composes them.
func (a *Analyzer) BuildAttackGraph(ctx context.Context) error {
	return a.update(StageAttackGraph, func(s *State) (*State, error) {
		subgraphs, err := a.build(ctx, s, s.Topology.SubnetNames())
		if err != nil {
			return nil, err
		}
		next := s.derive()
		next.Subgraphs = subgraphs
		a.compose(next)
		return next, nil
	})
}

// Merge collapses the composed graph into the risk graph and propagates
// reachability from outside.
func (a *Analyzer) Merge(ctx context.Context) error {
	return a.update(StageMerge, func(s *State) (*State, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return a.merge(s)
	})
}

// UpdateSubnets rebuilds the sub-graphs of the affected subnets, then
// recomposes and re-merges.
func (a *Analyzer) UpdateSubnets(ctx context.Context, affected []string) error {
	return a.update(StageUpdate, func(s *State) (*State, error) {
		return a.updateSubnets(ctx, s, affected)
	})
}

// AddService adds a service, classifies its image and updates the subnets
// it joins.
func (a *Analyzer) AddService(ctx context.Context, svc topology.Service) error {
	return a.update(StageUpdate, func(s *State) (*State, error) {
		next, affected, err := a.withService(ctx, s, svc)
		if err != nil {
			return nil, err
		}
		return a.updateSubnets(ctx, next, affected)
	})
}

// RemoveService removes a service and updates the subnets it belonged to.
func (a *Analyzer) RemoveService(ctx context.Context, name string) error {
	return a.update(StageUpdate, func(s *State) (*State, error) {
		topo, affected, err := s.Topology.WithoutService(name)
		if err != nil {
			return nil, err
		}
		next := s.derive()
		next.Topology = topo
		delete(next.Profiles, name)
		return a.updateSubnets(ctx, next, affected)
	})
}

// GenDefenceList ranks services for decoy placement on the current snapshot.
func (a *Analyzer) GenDefenceList(from, to string) (defense.PathCounts, error) {
	s := a.State()
	if !s.HasRisk() {
		return nil, fmt.Errorf("%s: %w", StageDefence, ErrNoRisk)
	}

	start := time.Now()
	counts, err := defense.GenDefenceList(s.Merged, s.Topology, from, to)
	a.metrics.RecordStage(StageDefence, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	a.logger.Info("defence list generated", logging.String("from", from),
		logging.String("to", to), logging.Count(len(counts)))
	return counts, nil
}

// Deployment is the outcome of DeployHoneypots.
type Deployment struct {
	Placements []defense.HoneypotPlacement `json:"placements"`
	Before     risk.Reachability           `json:"before"`
	After      risk.Reachability           `json:"after"`
	Comparison risk.Comparison             `json:"comparison"`
}

// DeployHoneypots places decoys next to every service whose count reaches
// minimum, updates the affected subnets and compares reachability before and
// after.
func (a *Analyzer) DeployHoneypots(ctx context.Context, counts defense.PathCounts, minimum int) (*Deployment, error) {
	var d *Deployment
	err := a.update(StageDeploy, func(s *State) (*State, error) {
		if !s.HasRisk() {
			return nil, fmt.Errorf("%s: %w", StageDeploy, ErrNoRisk)
		}

		plan := defense.PlanHoneypots(counts, s.Topology, minimum)
		next := s
		var affected []string
		for _, p := range plan {
			var (
				touched []string
				err     error
			)
			next, touched, err = a.withService(ctx, next, p.Service())
			if err != nil {
				return nil, err
			}
			affected = append(affected, touched...)
			a.logger.Info("honeypot placed", logging.Service(p.Name),
				logging.String("target", p.Target), logging.Strings("networks", p.Networks))
		}
		if len(plan) > 0 {
			var err error
			if next, err = a.updateSubnets(ctx, next, affected); err != nil {
				return nil, err
			}
		}

		cmp, err := risk.CompareRates(s.Reachability, next.Reachability, "")
		if err != nil {
			return nil, err
		}
		a.metrics.RecordDeployment(len(plan), cmp.MeanReduction)
		d = &Deployment{
			Placements: plan,
			Before:     s.Reachability,
			After:      next.Reachability,
			Comparison: cmp,
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// withService adds svc to the topology and classifies its image.
func (a *Analyzer) withService(ctx context.Context, s *State, svc topology.Service) (*State, []string, error) {
	topo, affected, err := s.Topology.WithService(svc)
	if err != nil {
		return nil, nil, err
	}
	vulns, err := a.load(ctx, []string{svc.Image})
	if err != nil {
		return nil, nil, err
	}
	profile, err := exploit.ClassifyService(svc, vulns, a.rules)
	if err != nil {
		return nil, nil, err
	}

	next := s.derive()
	next.Topology = topo
	if next.Profiles == nil {
		next.Profiles = make(map[string]*exploit.Profile)
	}
	next.Profiles[svc.Name] = profile
	return next, affected, nil
}

func (a *Analyzer) updateSubnets(ctx context.Context, s *State, affected []string) (*State, error) {
	// A whole-topology graph covers every subnet, so any change invalidates it.
	if _, full := s.Subgraphs[attackgraph.FullKey]; full && a.pool == nil {
		affected = append(slices.Clone(affected), model.Exposed)
	}

	rebuilt, err := a.build(ctx, s, affected)
	if err != nil {
		return nil, err
	}

	next := s.derive()
	if next.Subgraphs == nil {
		next.Subgraphs = make(map[string]*attackgraph.Graph)
	}
	for _, name := range affected {
		delete(next.Subgraphs, name)
	}
	if a.pool == nil && slices.Contains(affected, model.Exposed) {
		delete(next.Subgraphs, attackgraph.FullKey)
	}
	for name, g := range rebuilt {
		next.Subgraphs[name] = g
	}
	a.logger.Debug("subnets updated", logging.Strings("subnets", affected),
		logging.Int("rebuilt", len(rebuilt)))

	a.compose(next)
	return a.merge(next)
}

func (a *Analyzer) build(ctx context.Context, s *State, subnets []string) (map[string]*attackgraph.Graph, error) {
	if s.Profiles == nil {
		return nil, model.NewError(StageAttackGraph).Configuration().
			Cause(errors.New("profiles not built")).Err()
	}

	mode := metrics.ModeSequential
	count := len(subnets)
	switch {
	case a.pool != nil:
		mode = metrics.ModePool
	case slices.Contains(subnets, model.Exposed):
		mode, count = metrics.ModeFull, 1
	}

	subgraphs, err := a.builder(s).Build(ctx, subnets)
	a.metrics.RecordSubnetBuild(mode, count, err)
	return subgraphs, err
}

// compose replaces the composed graph of s and clears the risk results.
func (a *Analyzer) compose(s *State) {
	s.Composed = attackgraph.Union(s.Subgraphs)
	pruned := s.Composed.Prune()
	s.Merged, s.Reachability = nil, nil

	a.metrics.RecordComposition(s.Composed.Order(), s.Composed.Size(), pruned)
	a.logger.Info("attack graph composed", logging.Int("subgraphs", len(s.Subgraphs)),
		logging.Int("vertices", s.Composed.Order()), logging.Int("edges", s.Composed.Size()),
		logging.Int("pruned", pruned))
}

func (a *Analyzer) merge(s *State) (*State, error) {
	if !s.Built() {
		return nil, fmt.Errorf("%s: %w", StageMerge, ErrNoAttackGraph)
	}
	merged, err := risk.Merge(s.Composed, s.Profiles, a.decayBase)
	if err != nil {
		return nil, err
	}
	reach, err := risk.Propagate(merged, s.Topology)
	if err != nil {
		return nil, err
	}

	next := s.derive()
	next.Merged = merged
	next.Reachability = reach
	a.metrics.RecordMerge(merged.Order(), merged.Size(), reach)
	a.logger.Info("risk merged", logging.Int("services", merged.Order()),
		logging.Int("edges", merged.Size()))
	return next, nil
}

// load resolves image vulnerabilities. Without a source every image is clean.
func (a *Analyzer) load(ctx context.Context, images []string) (map[string][]model.Vulnerability, error) {
	if a.source == nil {
		return map[string][]model.Vulnerability{}, ctx.Err()
	}
	return a.source.Load(ctx, images)
}

func imagesOf(topo *topology.Topology, names []string) []string {
	images := make([]string, 0, len(names))
	for _, name := range names {
		if svc, ok := topo.Service(name); ok {
			images = append(images, svc.Image)
		}
	}
	slices.Sort(images)
	return slices.Compact(images)
}
