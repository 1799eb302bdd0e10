package e2e_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// liveStore stands in for Neo4j and PostgreSQL and counts every live call.
type liveStore struct {
	mu         sync.Mutex
	backward   map[string][]string
	forward    map[string][]string
	details    map[string]citation.PatentDetail
	portfolio  map[string]bool
	sectors    map[string]citation.SectorRef
	calls      map[string]int
	competitor *citation.Competitor
}

func newLiveStore() *liveStore {
	return &liveStore{
		backward:  make(map[string][]string),
		forward:   make(map[string][]string),
		details:   make(map[string]citation.PatentDetail),
		portfolio: make(map[string]bool),
		sectors:   make(map[string]citation.SectorRef),
		calls:     make(map[string]int),
	}
}

func (l *liveStore) cite(citing string, cited ...string) *liveStore {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range cited {
		l.backward[citing] = append(l.backward[citing], c)
		l.forward[c] = append(l.forward[c], citing)
	}
	return l
}

func (l *liveStore) patent(id, assignee string, year int, cpc ...string) *liveStore {
	l.mu.Lock()
	defer l.mu.Unlock()
	filed := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	l.details[id] = citation.PatentDetail{ID: id, Title: "Patent " + id, Assignee: assignee, CPCCodes: cpc, FilingDate: &filed}
	return l
}

func (l *liveStore) count(op, id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op+":"+id]
}

func (l *liveStore) hit(op, id string) {
	l.mu.Lock()
	l.calls[op+":"+id]++
	l.mu.Unlock()
}

func (l *liveStore) GetBackwardCitationIDs(_ context.Context, id string) ([]string, error) {
	l.hit("backward", id)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.backward[id]...), nil
}

func (l *liveStore) GetForwardCitationIDs(_ context.Context, id string) ([]string, error) {
	l.hit("forward", id)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.forward[id]...), nil
}

func (l *liveStore) UpsertCitations(_ context.Context, edges []citation.CitationEdge) (int, error) {
	for _, e := range edges {
		l.cite(e.Citing, e.Cited)
	}
	return len(edges), nil
}

func (l *liveStore) GetPatentDetail(_ context.Context, id string) (*citation.PatentDetail, error) {
	l.hit("detail", id)
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.details[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodePatentNotFound, "patent %s not found", id)
	}
	return &d, nil
}

func (l *liveStore) IsPortfolioMember(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portfolio[id], nil
}

func (l *liveStore) GetAffiliateOwner(context.Context, string) (*citation.Affiliate, error) {
	return nil, nil
}

func (l *liveStore) FindCompetitor(_ context.Context, name string) (*citation.Competitor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.competitor != nil && citation.NormalizeEntity(l.competitor.Name) == name {
		return l.competitor, nil
	}
	return nil, nil
}

func (l *liveStore) SectorForCPC(_ context.Context, codes []string) (*citation.SectorRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, code := range codes {
		for prefix, ref := range l.sectors {
			if strings.HasPrefix(code, prefix) {
				r := ref
				return &r, nil
			}
		}
	}
	return nil, nil
}

// eventBus carries published events through the Kafka envelope codec to the
// prefetch handler, the way the topic does between the API and the worker.
type eventBus struct {
	mu      sync.Mutex
	handler kafka.Handler
	types   []string
}

func (b *eventBus) Publish(ctx context.Context, e exploration.Event) error {
	env, err := kafka.NewEventEnvelope(e.Type, kafka.SourceService, e)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"exploration_id": e.ExplorationID}
	msg, err := env.ToMessage(e.ExplorationID)
	if err != nil {
		return err
	}
	decoded, err := kafka.DecodeEnvelope(msg.Value)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.types = append(b.types, decoded.EventType)
	b.mu.Unlock()
	return b.handler(ctx, decoded)
}

func (b *eventBus) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.types...)
}
