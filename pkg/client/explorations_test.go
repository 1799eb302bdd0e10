package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

func jsonHandler(t *testing.T, method, path string, check func(r *http.Request), resp interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, method, r.Method)
		assert.Equal(t, path, r.URL.Path)
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func decodeBody(t *testing.T, r *http.Request, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(v))
}

func TestExplorations_Create(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/api/v1/explorations", func(r *http.Request) {
		var req types.CreateRequest
		decodeBody(t, r, &req)
		assert.Equal(t, []string{"S1", "S2"}, req.SeedIDs)
		assert.Equal(t, "citation-heavy", req.Preset)
	}, types.CreateResponse{Exploration: types.Exploration{ID: "exp-1", Version: 1}, Warnings: []string{}}))

	res, err := c.Explorations().Create(context.Background(), &types.CreateRequest{SeedIDs: []string{"S1", "S2"}, Preset: "citation-heavy"})
	require.NoError(t, err)
	assert.Equal(t, "exp-1", res.Exploration.ID)
}

func TestExplorations_Create_RequiresSeeds(t *testing.T) {
	c, _ := NewClient("http://api.example.com", "")
	_, err := c.Explorations().Create(context.Background(), &types.CreateRequest{})
	assert.Error(t, err)
}

func TestExplorations_Get_EscapesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/explorations/a%2Fb", r.URL.RawPath)
		_ = json.NewEncoder(w).Encode(types.Exploration{ID: "a/b"})
	})
	doc, err := c.Explorations().Get(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", doc.ID)
}

func TestExplorations_List(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodGet, "/api/v1/explorations", func(r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
	}, types.ListResponse{Items: []types.Summary{{ID: "exp-1"}}, Total: 21, Limit: 10, Offset: 20}))

	page, err := c.Explorations().List(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(21), page.Total)
	require.Len(t, page.Items, 1)
}

func TestExplorations_Expand(t *testing.T) {
	gen := 2
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/api/v1/explorations/exp-1/expand", func(r *http.Request) {
		var req types.ExpandRequest
		decodeBody(t, r, &req)
		assert.Equal(t, "forward", req.Direction)
		require.NotNil(t, req.ExpectedGeneration)
		assert.Equal(t, 2, *req.ExpectedGeneration)
	}, types.ExpansionResult{ExplorationID: "exp-1", Generation: 3, Candidates: []types.Candidate{{PatentID: "Z"}}}))

	res, err := c.Explorations().Expand(context.Background(), "exp-1", &types.ExpandRequest{Direction: "forward", ExpectedGeneration: &gen})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Generation)
	assert.Equal(t, "Z", res.Candidates[0].PatentID)
}

func TestExplorations_Siblings(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/api/v1/explorations/exp-1/siblings", nil,
		types.ExpansionResult{ExplorationID: "exp-1"}))
	_, err := c.Explorations().Siblings(context.Background(), "exp-1", &types.SiblingsRequest{Direction: "both"})
	assert.NoError(t, err)
}

func TestExplorations_RescoreNilRequest(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/api/v1/explorations/exp-1/rescore", func(r *http.Request) {
		var req types.RescoreRequest
		decodeBody(t, r, &req)
		assert.Empty(t, req.Preset)
	}, types.ExpansionResult{ExplorationID: "exp-1"}))
	_, err := c.Explorations().Rescore(context.Background(), "exp-1", nil)
	assert.NoError(t, err)
}

func TestExplorations_SetStatus(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodPost, "/api/v1/explorations/exp-1/status", func(r *http.Request) {
		var req types.StatusRequest
		decodeBody(t, r, &req)
		assert.Equal(t, []types.StatusChange{{PatentID: "P1", Status: "excluded"}}, req.Changes)
	}, types.Exploration{ID: "exp-1", Version: 4}))

	doc, err := c.Explorations().SetStatus(context.Background(), "exp-1", types.StatusChange{PatentID: "P1", Status: "excluded"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), doc.Version)

	_, err = c.Explorations().SetStatus(context.Background(), "exp-1")
	assert.Error(t, err)
}

func TestExplorations_RebuildAndArchive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/explorations/exp-1/rebuild", jsonHandler(t, http.MethodPost, "/api/v1/explorations/exp-1/rebuild", nil,
		types.RebuildResponse{ExplorationID: "exp-1", Contributors: 3}))
	mux.HandleFunc("/api/v1/explorations/exp-1/archive", jsonHandler(t, http.MethodPost, "/api/v1/explorations/exp-1/archive", nil,
		types.ArchiveResponse{ExplorationID: "exp-1", Key: "explorations/exp-1/v5.json"}))
	c := newTestClient(t, mux.ServeHTTP)

	rb, err := c.Explorations().Rebuild(context.Background(), "exp-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, rb.Contributors)

	ar, err := c.Explorations().Archive(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "explorations/exp-1/v5.json", ar.Key)
}

func TestExplorations_Presets(t *testing.T) {
	c := newTestClient(t, jsonHandler(t, http.MethodGet, "/api/v1/weight-presets", nil,
		types.PresetsResponse{Presets: []types.Preset{{Name: "balanced", Default: true}}}))
	res, err := c.Explorations().Presets(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Presets[0].Default)
}

func TestExplorations_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"EXP_006","message":"exploration not found"}}`))
	})
	_, err := c.Explorations().Get(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "EXP_006", apiErr.Code)
}

func TestExplorations_EmptyID(t *testing.T) {
	c, _ := NewClient("http://api.example.com", "")
	ctx := context.Background()
	_, err := c.Explorations().Get(ctx, "")
	assert.Error(t, err)
	_, err = c.Explorations().Expand(ctx, "", &types.ExpandRequest{Direction: "both"})
	assert.Error(t, err)
	_, err = c.Explorations().Archive(ctx, "")
	assert.Error(t, err)
}
