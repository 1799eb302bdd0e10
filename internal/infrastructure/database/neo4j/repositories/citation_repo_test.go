package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
)

func TestGetBackwardCitationIDs_SortedAndSelfFiltered(t *testing.T) {
	d, tx := setupMockDriver()
	tx.On("Run", mock.Anything, queryBackward, map[string]any{"id": "US1"}).
		Return(&MockResult{Records: idRecords("US9", "US1", "US3")}, nil)

	repo := NewNeo4jCitationRepo(d, nil)
	ids, err := repo.GetBackwardCitationIDs(context.Background(), "US1")

	require.NoError(t, err)
	assert.Equal(t, []string{"US3", "US9"}, ids)
	d.AssertCalled(t, "ExecuteRead", mock.Anything)
}

func TestGetForwardCitationIDs_Empty(t *testing.T) {
	d, tx := setupMockDriver()
	tx.On("Run", mock.Anything, queryForward, mock.Anything).Return(&MockResult{}, nil)

	ids, err := NewNeo4jCitationRepo(d, nil).GetForwardCitationIDs(context.Background(), "US2")

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetForwardCitationIDs_RunError(t *testing.T) {
	d, tx := setupMockDriver()
	tx.On("Run", mock.Anything, queryForward, mock.Anything).Return(nil, errors.New("bolt down"))

	_, err := NewNeo4jCitationRepo(d, nil).GetForwardCitationIDs(context.Background(), "US2")
	assert.Error(t, err)
}

func TestUpsertCitations_SkipsInvalidAndCounts(t *testing.T) {
	d, tx := setupMockDriver()
	summary := &MockResultSummary{CountersObj: &MockCounters{RelationshipsCreatedVal: 2}}
	tx.On("Run", mock.Anything, queryUpsert, mock.MatchedBy(func(p map[string]any) bool {
		rows, ok := p["batch"].([]map[string]any)
		return ok && len(rows) == 2
	})).Return(&MockResult{Summary: summary}, nil)

	n, err := NewNeo4jCitationRepo(d, nil).UpsertCitations(context.Background(), []citation.CitationEdge{
		{Citing: "A", Cited: "B"},
		{Citing: "A", Cited: "A"},
		{Citing: "", Cited: "C"},
		{Citing: "B", Cited: "C"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	tx.AssertNumberOfCalls(t, "Run", 1)
}

func TestUpsertCitations_Batches(t *testing.T) {
	d, tx := setupMockDriver()
	summary := &MockResultSummary{CountersObj: &MockCounters{RelationshipsCreatedVal: 1}}
	tx.On("Run", mock.Anything, queryUpsert, mock.Anything).Return(&MockResult{Summary: summary}, nil)

	repo := &neo4jCitationRepo{driver: d, log: logging.NewNopLogger(), batchSize: 2}

	n, err := repo.UpsertCitations(context.Background(), []citation.CitationEdge{
		{Citing: "A", Cited: "B"}, {Citing: "A", Cited: "C"}, {Citing: "A", Cited: "D"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	tx.AssertNumberOfCalls(t, "Run", 2)
}

func TestUpsertCitations_NoRows(t *testing.T) {
	d, _ := setupMockDriver()
	n, err := NewNeo4jCitationRepo(d, nil).UpsertCitations(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	d.AssertNotCalled(t, "ExecuteWrite", mock.Anything)
}

var _ neo4j.Counters = (*MockCounters)(nil)
