package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// FakeGateway is a map-backed citation.Gateway. Lookups of unknown patents
// return empty citation lists and PatentNotFound for details.
type FakeGateway struct {
	mu sync.Mutex

	backward    map[string][]string
	forward     map[string][]string
	details     map[string]*citation.PatentDetail
	cpcSectors  map[string]citation.SectorRef
	portfolio   map[string]bool
	affiliates  map[string]citation.Affiliate
	competitors map[string]string
	failures    map[string]error
	calls       map[string]int

	// Delay is applied to every lookup; a cancelled context aborts the wait.
	Delay time.Duration
}

// NewFakeGateway creates an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		backward:    make(map[string][]string),
		forward:     make(map[string][]string),
		details:     make(map[string]*citation.PatentDetail),
		cpcSectors:  make(map[string]citation.SectorRef),
		portfolio:   make(map[string]bool),
		affiliates:  make(map[string]citation.Affiliate),
		competitors: make(map[string]string),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

var _ citation.Gateway = (*FakeGateway)(nil)

// Cite records that citing cites cited.
func (g *FakeGateway) Cite(citing string, cited ...string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range cited {
		g.backward[citing] = append(g.backward[citing], c)
		g.forward[c] = append(g.forward[c], citing)
	}
	return g
}

// AddPatent registers a patent detail.
func (g *FakeGateway) AddPatent(d citation.PatentDetail) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := d
	g.details[d.ID] = &cp
	return g
}

// MapCPC maps a CPC prefix to a sector.
func (g *FakeGateway) MapCPC(prefix string, ref citation.SectorRef) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cpcSectors[strings.ToUpper(prefix)] = ref
	return g
}

// SetPortfolio marks ids as portfolio members.
func (g *FakeGateway) SetPortfolio(ids ...string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.portfolio[id] = true
	}
	return g
}

// SetAffiliate marks id as owned by affiliate.
func (g *FakeGateway) SetAffiliate(id, affiliate string) *FakeGateway {
	return g.SetAffiliateOf(id, affiliate, "")
}

// SetAffiliateOf marks id as owned by affiliate, a subsidiary of parent.
func (g *FakeGateway) SetAffiliateOf(id, affiliate, parent string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.affiliates[id] = citation.Affiliate{Name: affiliate, Parent: parent}
	return g
}

// AddCompetitor registers a competitor under its name and aliases.
func (g *FakeGateway) AddCompetitor(name string, aliases ...string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range append([]string{name}, aliases...) {
		g.competitors[citation.NormalizeEntity(n)] = name
	}
	return g
}

// Fail makes the lookup op ("backward", "forward", "detail", "ownership")
// of id return err.
func (g *FakeGateway) Fail(op, id string, err error) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op+":"+id] = err
	return g
}

// Calls returns how often op was called for id.
func (g *FakeGateway) Calls(op, id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op+":"+id]
}

// TotalCalls returns the number of lookups of any kind.
func (g *FakeGateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *FakeGateway) enter(ctx context.Context, op, id string) error {
	if g.Delay > 0 {
		t := time.NewTimer(g.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op+":"+id]++
	return g.failures[op+":"+id]
}

func (g *FakeGateway) list(m map[string][]string, id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return citation.NormalizeIDs(m[id])
}

func (g *FakeGateway) GetBackwardCitations(ctx context.Context, patentID string) ([]string, error) {
	if err := g.enter(ctx, "backward", patentID); err != nil {
		return nil, err
	}
	return g.list(g.backward, patentID), nil
}

func (g *FakeGateway) GetForwardCitations(ctx context.Context, patentID string) ([]string, error) {
	if err := g.enter(ctx, "forward", patentID); err != nil {
		return nil, err
	}
	return g.list(g.forward, patentID), nil
}

func (g *FakeGateway) GetPatentDetail(ctx context.Context, patentID string) (*citation.PatentDetail, error) {
	if err := g.enter(ctx, "detail", patentID); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.details[patentID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodePatentNotFound, "patent %s not found", patentID)
	}
	cp := *d
	return &cp, nil
}

// GetSectorForCPC picks the longest registered prefix matching any code.
func (g *FakeGateway) GetSectorForCPC(ctx context.Context, cpcCodes []string) (citation.SectorRef, bool) {
	if err := g.enter(ctx, "sector", strings.Join(cpcCodes, ",")); err != nil {
		return citation.SectorRef{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	prefixes := make([]string, 0, len(g.cpcSectors))
	for p := range g.cpcSectors {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	for _, p := range prefixes {
		for _, code := range cpcCodes {
			if strings.HasPrefix(strings.ToUpper(strings.ReplaceAll(code, " ", "")), p) {
				return g.cpcSectors[p], true
			}
		}
	}
	return citation.SectorRef{}, false
}

func (g *FakeGateway) IsPortfolioMember(ctx context.Context, patentID string) (bool, error) {
	if err := g.enter(ctx, "ownership", patentID); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.portfolio[patentID], nil
}

func (g *FakeGateway) IsAffiliate(ctx context.Context, patentID string) (bool, string, error) {
	if err := g.enter(ctx, "affiliate", patentID); err != nil {
		return false, "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.affiliates[patentID]
	return ok, a.Name, nil
}

func (g *FakeGateway) GetAffiliate(ctx context.Context, patentID string) (*citation.Affiliate, error) {
	if err := g.enter(ctx, "affiliate", patentID); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.affiliates[patentID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (g *FakeGateway) IsCompetitor(ctx context.Context, entityName string) (bool, string) {
	if err := g.enter(ctx, "competitor", entityName); err != nil {
		return false, ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	name, ok := g.competitors[citation.NormalizeEntity(entityName)]
	return ok, name
}
