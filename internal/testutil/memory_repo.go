package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// MemoryRepository is an exploration.Repository that keeps JSON documents in
// memory. Every read decodes a fresh copy, so callers never share state with
// the store, and Update enforces the same version check as the Postgres
// repository.
type MemoryRepository struct {
	mu   sync.Mutex
	docs map[string][]byte

	// BeforeUpdate, when set, runs inside Update before the version check.
	BeforeUpdate func(id string)
	Updates      int
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string][]byte)}
}

var _ exploration.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(_ context.Context, s *exploration.ExplorationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[s.ID]; ok {
		return errors.Newf(errors.ErrCodeExplorationAlreadyExists, "exploration %s already exists", s.ID)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode exploration")
	}
	r.docs[s.ID] = doc
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*exploration.ExplorationState, error) {
	r.mu.Lock()
	doc, ok := r.docs[id]
	r.mu.Unlock()
	if !ok {
		return nil, errors.Newf(errors.ErrCodeExplorationNotFound, "exploration %s not found", id)
	}
	return decode(doc)
}

func (r *MemoryRepository) Update(_ context.Context, s *exploration.ExplorationState, expectedVersion int64) error {
	if r.BeforeUpdate != nil {
		r.BeforeUpdate(s.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[s.ID]
	if !ok {
		return errors.Newf(errors.ErrCodeExplorationNotFound, "exploration %s not found", s.ID)
	}
	stored, err := decode(doc)
	if err != nil {
		return err
	}
	if stored.Version != expectedVersion {
		return errors.Newf(errors.ErrCodeStaleGenerationConflict,
			"exploration %s was modified concurrently (expected version %d)", s.ID, expectedVersion)
	}
	next, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode exploration")
	}
	r.docs[s.ID] = next
	r.Updates++
	return nil
}

func (r *MemoryRepository) List(_ context.Context, limit, offset int) ([]exploration.Summary, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]exploration.Summary, 0, len(r.docs))
	for _, doc := range r.docs {
		s, err := decode(doc)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s.Summarize())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := int64(len(out))
	if offset >= len(out) {
		return []exploration.Summary{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

// Bump advances the stored version without other changes, simulating a
// concurrent writer.
func (r *MemoryRepository) Bump(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := decode(r.docs[id])
	if err != nil {
		return
	}
	s.Version++
	r.docs[id], _ = json.Marshal(s)
}

func decode(doc []byte) (*exploration.ExplorationState, error) {
	var s exploration.ExplorationState
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode exploration")
	}
	if s.Candidates == nil {
		s.Candidates = make(map[string]*exploration.CandidateRecord)
	}
	return &s, nil
}

// RecordingPublisher captures published events.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []exploration.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, e exploration.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, e)
	return nil
}

// Types returns the captured event types in order.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Type
	}
	return out
}

// MemorySnapshotStore keeps archived snapshots in memory.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	Snapshots map[string][]byte
}

func (m *MemorySnapshotStore) PutSnapshot(_ context.Context, s *exploration.ExplorationState) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Snapshots == nil {
		m.Snapshots = make(map[string][]byte)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	key := "explorations/" + s.ID + ".json"
	m.Snapshots[key] = doc
	return key, nil
}
