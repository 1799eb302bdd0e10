package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	pkgerrors "github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

type mockDriver struct{ mock.Mock }

func (m *mockDriver) VerifyConnectivity(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) internalSession {
	return m.Called(ctx, cfg).Get(0).(internalSession)
}
func (m *mockDriver) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

type mockSession struct {
	mock.Mock
	tx Transaction
}

func (m *mockSession) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return work(m.tx)
}
func (m *mockSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return work(m.tx)
}
func (m *mockSession) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

type stubTx struct {
	res Result
	err error
}

func (t stubTx) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.res, t.err
}

type sliceResult struct {
	records []*neo4j.Record
	pos     int
	err     error
}

func (r *sliceResult) Next(ctx context.Context) bool {
	if r.pos < len(r.records) {
		r.pos++
		return true
	}
	return false
}
func (r *sliceResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *sliceResult) Err() error            { return r.err }
func (r *sliceResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return nil, nil
}

func TestDriver_ExecuteRead_UsesConfiguredDatabase(t *testing.T) {
	md := new(mockDriver)
	sess := &mockSession{tx: stubTx{res: &sliceResult{}}}
	sess.On("Close", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, neo4j.SessionConfig{DatabaseName: "citations", AccessMode: neo4j.AccessModeRead}).Return(sess)

	d := newDriver(md, "citations", nil)
	out, err := d.ExecuteRead(context.Background(), func(tx Transaction) (any, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	md.AssertExpectations(t)
	sess.AssertCalled(t, "Close", mock.Anything)
}

func TestDriver_ExecuteWrite_WrapsError(t *testing.T) {
	md := new(mockDriver)
	sess := &mockSession{tx: stubTx{}}
	sess.On("Close", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, mock.Anything).Return(sess)

	d := newDriver(md, "", nil)
	_, err := d.ExecuteWrite(context.Background(), func(tx Transaction) (any, error) {
		return nil, errors.New("constraint violated")
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestDriver_HealthCheck(t *testing.T) {
	md := new(mockDriver)
	md.On("VerifyConnectivity", mock.Anything).Return(nil)
	sess := &mockSession{tx: stubTx{res: &sliceResult{}}}
	sess.On("Close", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, mock.Anything).Return(sess)

	assert.NoError(t, newDriver(md, "", nil).HealthCheck(context.Background()))
}

func TestDriver_HealthCheck_Unreachable(t *testing.T) {
	md := new(mockDriver)
	md.On("VerifyConnectivity", mock.Anything).Return(errors.New("refused"))

	err := newDriver(md, "", nil).HealthCheck(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestDriver_CloseOnce(t *testing.T) {
	md := new(mockDriver)
	md.On("Close", mock.Anything).Return(nil).Once()

	d := newDriver(md, "", nil)
	assert.NoError(t, d.Close(context.Background()))
	assert.NoError(t, d.Close(context.Background()))
	md.AssertNumberOfCalls(t, "Close", 1)
}

func TestCollectStrings(t *testing.T) {
	res := &sliceResult{records: []*neo4j.Record{
		{Keys: []string{"id"}, Values: []any{"P1"}},
		{Keys: []string{"id"}, Values: []any{nil}},
		{Keys: []string{"id"}, Values: []any{"P2"}},
	}}
	ids, err := CollectStrings(context.Background(), res, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, ids)

	bad := &sliceResult{records: []*neo4j.Record{{Keys: []string{"id"}, Values: []any{int64(4)}}}}
	_, err = CollectStrings(context.Background(), bad, "id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}
