// Package errors_test covers AppError construction and error-chain helpers.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// TestNew
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"no valid seeds", errors.ErrCodeNoValidSeeds, "none of 3 seeds resolved"},
		{"invalid weights", errors.ErrCodeInvalidWeightConfig, "taxonomic weight 1.4 out of range"},
		{"stale generation", errors.ErrCodeStaleGenerationConflict, "expected generation 2, stored 3"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.NotEmpty(t, ae.Stack)
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()

	ae := errors.Newf(errors.ErrCodeExplorationNotFound, "exploration %s not found", "abc")
	assert.Equal(t, "exploration abc not found", ae.Message)
}

// ─────────────────────────────────────────────────────────────────────────────
// TestWrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("dial tcp: connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeGatewayFetchFailure, "backward citations")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeGatewayFetchFailure, wrapped.Code)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodePatentNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")

	require.NotNil(t, outer)
	assert.Equal(t, errors.ErrCodePatentNotFound, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodePatentNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")

	assert.Equal(t, errors.CodeInternal, outer.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// TestError
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeNoValidSeeds, "no seed resolved")
	assert.Equal(t, "[EXP_002] no seed resolved", ae.Error())

	detailed := ae.WithDetail("seeds=US1,US2")
	assert.Equal(t, "[EXP_002] no seed resolved: seeds=US1,US2", detailed.Error())

	wrapped := errors.Wrap(stderrors.New("timeout"), errors.ErrCodeGatewayFetchFailure, "fetch")
	assert.Equal(t, "[GW_001] fetch: timeout", wrapped.Error())
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := errors.NotFound("resource missing")
	detailed := original.WithDetail("id=42")

	assert.Empty(t, original.Detail)
	assert.Equal(t, "id=42", detailed.Detail)
	assert.Equal(t, original.Code, detailed.Code)

	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithDetail("x"))
	assert.Nil(t, nilErr.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain helpers
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_TraversesFmtWrapping(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeStaleGenerationConflict, "stale")
	outer := fmt.Errorf("service: %w", inner)

	assert.True(t, errors.IsCode(outer, errors.ErrCodeStaleGenerationConflict))
	assert.False(t, errors.IsCode(outer, errors.ErrCodeNoValidSeeds))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeNoValidSeeds))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeInvalidWeightConfig,
		errors.GetCode(fmt.Errorf("wrap: %w", errors.New(errors.ErrCodeInvalidWeightConfig, "bad"))))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"generic", errors.NotFound("not found"), true},
		{"patent", errors.New(errors.ErrCodePatentNotFound, "patent"), true},
		{"exploration", errors.New(errors.ErrCodeExplorationNotFound, "exploration"), true},
		{"wrapped", fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeExplorationNotFound, "x")), true},
		{"conflict", errors.Conflict("conflict"), false},
		{"plain", stderrors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, errors.IsNotFound(tc.err), tc.name)
	}
}
