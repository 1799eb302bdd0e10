package exploration

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	domain "github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/batch"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// frontierNode is a node being expanded, with the generation it sits at.
type frontierNode struct {
	id         string
	generation int
}

// edge is one discovered candidate as seen from one frontier node.
type edge struct {
	candidate  string
	via        string
	relation   domain.Relation
	generation int
}

// discovery merges every edge that reached the same candidate in one step:
// the union of discoverers and relations, and the minimum generation.
type discovery struct {
	id         string
	generation int
	by         map[string]struct{}
	relations  map[domain.Relation]struct{}
}

func (d *discovery) sortedBy() []string {
	out := make([]string, 0, len(d.by))
	for id := range d.by {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (d *discovery) sortedRelations() []domain.Relation {
	out := make([]domain.Relation, 0, len(d.relations))
	for r := range d.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// discoverFunc lists the edges leaving one frontier node. Partial failures
// below the node are returned as warnings; an error fails the whole node.
type discoverFunc func(ctx context.Context, n frontierNode) ([]edge, []string, error)

type nodeOutcome struct {
	edges    []edge
	warnings []string
}

// stepInput is everything a discovery step needs from the state.
type stepInput struct {
	frontier      []frontierNode
	aggregate     *scoring.SeedAggregate
	seen          map[string]struct{}
	seeds         map[string]struct{}
	weights       scoring.ScoringWeights
	thresholds    scoring.Thresholds
	maxCandidates int
	stepNumber    int
}

// stepOutput holds the kept records in rank order.
type stepOutput struct {
	records  []*domain.CandidateRecord
	pruned   int
	warnings []string
}

// runDiscovery is the shared pipeline of generation and sibling expansion:
// fetch the frontier's neighbours, drop what was already seen, resolve and
// score the rest in parallel, rank, cap and zone.
func (s *serviceImpl) runDiscovery(ctx context.Context, in stepInput, discover discoverFunc) (*stepOutput, error) {
	out := &stepOutput{}
	if len(in.frontier) == 0 {
		out.warnings = append(out.warnings, "frontier is empty: nothing to expand")
		return out, nil
	}

	// 1. fetch
	proc := batch.New[frontierNode, nodeOutcome](
		batch.WithName("frontier-fetch"),
		batch.WithMaxConcurrency(s.cfg.FetchConcurrency),
		batch.WithRetryPolicy(batch.RetryPolicy{}),
		batch.WithLogger(s.logger),
	)
	res, err := proc.Process(ctx, in.frontier, func(ctx context.Context, n frontierNode) (nodeOutcome, error) {
		edges, warnings, err := discover(ctx, n)
		return nodeOutcome{edges: edges, warnings: warnings}, err
	})
	if err != nil {
		return nil, err
	}

	// 2. merge, dropping already-seen ids
	found := make(map[string]*discovery)
	for _, it := range res.Items {
		node := in.frontier[it.Index]
		if !it.OK() {
			out.warnings = append(out.warnings, fetchWarning("citations", node.id, it.Err))
			continue
		}
		out.warnings = append(out.warnings, it.Result.warnings...)
		for _, e := range it.Result.edges {
			if _, ok := in.seen[e.candidate]; ok || e.candidate == "" {
				continue
			}
			d, ok := found[e.candidate]
			if !ok {
				d = &discovery{
					id:         e.candidate,
					generation: e.generation,
					by:         make(map[string]struct{}),
					relations:  make(map[domain.Relation]struct{}),
				}
				found[e.candidate] = d
			}
			if e.generation < d.generation {
				d.generation = e.generation
			}
			d.by[e.via] = struct{}{}
			d.relations[e.relation] = struct{}{}
		}
	}
	if len(found) == 0 {
		out.warnings = append(out.warnings, "no new candidates discovered from the frontier")
		return out, nil
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// 3. resolve profiles
	type resolved struct {
		profile  *scoring.CandidateProfile
		detail   *citation.PatentDetail
		warnings []string
	}
	profiles := make([]resolved, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, id := range ids {
		i, d := i, found[id]
		g.Go(func() error {
			p, det, warnings, err := s.resolver.candidate(gctx, d, in.seeds)
			if err != nil {
				return err
			}
			profiles[i] = resolved{profile: p, detail: det, warnings: warnings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. score
	records := make([]*domain.CandidateRecord, len(ids))
	sg, sctx := errgroup.WithContext(ctx)
	sg.SetLimit(s.cfg.ScoreConcurrency)
	for i, id := range ids {
		i, d, r := i, found[id], profiles[i]
		sg.Go(func() error {
			if err := sctx.Err(); err != nil {
				return err
			}
			rec := &domain.CandidateRecord{
				PatentID:       d.id,
				Dimensions:     scoring.ScoreAll(r.profile, in.aggregate),
				Generation:     d.generation,
				Relations:      d.sortedRelations(),
				DiscoveredBy:   d.sortedBy(),
				DiscoveredStep: in.stepNumber,
			}
			if r.detail != nil {
				rec.Title = r.detail.Title
				rec.Assignee = r.detail.Assignee
			}
			rec.Apply(in.weights, in.thresholds)
			records[i] = rec
			return nil
		})
	}
	if err := sg.Wait(); err != nil {
		return nil, err
	}
	for _, r := range profiles {
		out.warnings = append(out.warnings, r.warnings...)
	}

	// 5. rank and 6. cap
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Composite != records[j].Composite {
			return records[i].Composite > records[j].Composite
		}
		return records[i].PatentID < records[j].PatentID
	})
	if in.maxCandidates > 0 && len(records) > in.maxCandidates {
		out.pruned = len(records) - in.maxCandidates
		records = records[:in.maxCandidates]
		out.warnings = append(out.warnings, fmt.Sprintf("%s: kept %d of %d candidates, %d pruned",
			errors.ErrCodeCandidateCapExceeded, in.maxCandidates, in.maxCandidates+out.pruned, out.pruned))
	}
	out.records = records
	return out, nil
}

// frontierNodes pairs each frontier id with its generation.
func frontierNodes(st *domain.ExplorationState) []frontierNode {
	nodes := make([]frontierNode, 0, len(st.Frontier))
	for _, id := range st.Frontier {
		gen := 0
		if r, ok := st.Candidates[id]; ok {
			gen = r.Generation
		}
		nodes = append(nodes, frontierNode{id: id, generation: gen})
	}
	return nodes
}

func setOf(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// citationsDiscoverer follows citations one generation out.
func (s *serviceImpl) citationsDiscoverer(dir domain.Direction) discoverFunc {
	return func(ctx context.Context, n frontierNode) ([]edge, []string, error) {
		var out []edge
		if dir.Backward() {
			ids, err := s.gw.GetBackwardCitations(ctx, n.id)
			if err != nil {
				return nil, nil, err
			}
			for _, id := range ids {
				if id != n.id {
					out = append(out, edge{candidate: id, via: n.id, relation: domain.RelationParent, generation: n.generation + 1})
				}
			}
		}
		if dir.Forward() {
			ids, err := s.gw.GetForwardCitations(ctx, n.id)
			if err != nil {
				return nil, nil, err
			}
			for _, id := range ids {
				if id != n.id {
					out = append(out, edge{candidate: id, via: n.id, relation: domain.RelationChild, generation: n.generation + 1})
				}
			}
		}
		return out, nil, nil
	}
}

// siblingsDiscoverer finds patents sharing a parent (backward) or a child
// (forward) with the frontier node. Siblings stay at the node's generation.
func (s *serviceImpl) siblingsDiscoverer(dir domain.Direction) discoverFunc {
	return func(ctx context.Context, n frontierNode) ([]edge, []string, error) {
		var (
			out      []edge
			warnings []string
		)
		hop := func(first, second func(context.Context, string) ([]string, error), label string) error {
			hubs, err := first(ctx, n.id)
			if err != nil {
				return err
			}
			for _, hub := range hubs {
				ids, err := second(ctx, hub)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					warnings = append(warnings, fetchWarning(label, hub, err))
					continue
				}
				for _, id := range ids {
					if id != n.id {
						out = append(out, edge{candidate: id, via: n.id, relation: domain.RelationSibling, generation: n.generation})
					}
				}
			}
			return nil
		}
		if dir.Backward() {
			if err := hop(s.gw.GetBackwardCitations, s.gw.GetForwardCitations, "forward citations"); err != nil {
				return nil, nil, err
			}
		}
		if dir.Forward() {
			if err := hop(s.gw.GetForwardCitations, s.gw.GetBackwardCitations, "backward citations"); err != nil {
				return nil, nil, err
			}
		}
		return out, warnings, nil
	}
}
