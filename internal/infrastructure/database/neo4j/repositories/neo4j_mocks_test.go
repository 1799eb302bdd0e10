package repositories

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/mock"
	infraNeo4j "github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/neo4j"
)

// MockInfraDriver implements infraNeo4j.DriverInterface by running work
// against Tx.
type MockInfraDriver struct {
	mock.Mock
	Tx *MockInfraTransaction
}

func (m *MockInfraDriver) ExecuteRead(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
	m.Called(ctx)
	return work(m.Tx)
}

func (m *MockInfraDriver) ExecuteWrite(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
	m.Called(ctx)
	return work(m.Tx)
}

func (m *MockInfraDriver) HealthCheck(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockInfraDriver) Close(ctx context.Context) error       { return m.Called(ctx).Error(0) }

// MockInfraTransaction implements infraNeo4j.Transaction.
type MockInfraTransaction struct {
	mock.Mock
}

func (m *MockInfraTransaction) Run(ctx context.Context, cypher string, params map[string]any) (infraNeo4j.Result, error) {
	args := m.Called(ctx, cypher, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(infraNeo4j.Result), args.Error(1)
}

// MockResult iterates over Records.
type MockResult struct {
	Records []*neo4j.Record
	Summary neo4j.ResultSummary
	pos     int
}

func (m *MockResult) Next(ctx context.Context) bool {
	if m.pos < len(m.Records) {
		m.pos++
		return true
	}
	return false
}

func (m *MockResult) Record() *neo4j.Record { return m.Records[m.pos-1] }
func (m *MockResult) Err() error            { return nil }

func (m *MockResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return m.Summary, nil
}

// MockResultSummary overrides Counters; other methods panic if called.
type MockResultSummary struct {
	neo4j.ResultSummary
	CountersObj neo4j.Counters
}

func (m *MockResultSummary) Counters() neo4j.Counters { return m.CountersObj }

// MockCounters overrides RelationshipsCreated.
type MockCounters struct {
	neo4j.Counters
	RelationshipsCreatedVal int
}

func (m *MockCounters) RelationshipsCreated() int { return m.RelationshipsCreatedVal }

func idRecords(ids ...any) []*neo4j.Record {
	out := make([]*neo4j.Record, len(ids))
	for i, id := range ids {
		out[i] = &neo4j.Record{Keys: []string{"id"}, Values: []any{id}}
	}
	return out
}

func setupMockDriver() (*MockInfraDriver, *MockInfraTransaction) {
	tx := new(MockInfraTransaction)
	d := &MockInfraDriver{Tx: tx}
	d.On("ExecuteRead", mock.Anything)
	d.On("ExecuteWrite", mock.Anything)
	return d, tx
}
