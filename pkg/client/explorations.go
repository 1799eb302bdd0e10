package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

// ExplorationsClient covers the /api/v1/explorations resource and the weight
// presets.
type ExplorationsClient struct {
	client *Client
}

func explorationPath(id, action string) string {
	p := "/api/v1/explorations/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// Create starts an exploration from seed patents.
func (e *ExplorationsClient) Create(ctx context.Context, req *types.CreateRequest) (*types.CreateResponse, error) {
	if req == nil || len(req.SeedIDs) == 0 {
		return nil, fmt.Errorf("explorer: at least one seed id is required")
	}
	var out types.CreateResponse
	if err := e.client.post(ctx, "/api/v1/explorations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches the full exploration document.
func (e *ExplorationsClient) Get(ctx context.Context, id string) (*types.Exploration, error) {
	if id == "" {
		return nil, fmt.Errorf("explorer: exploration id is required")
	}
	var out types.Exploration
	if err := e.client.get(ctx, explorationPath(id, ""), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of exploration summaries. Zero limit uses the
// server default.
func (e *ExplorationsClient) List(ctx context.Context, limit, offset int) (*types.ListResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/explorations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out types.ListResponse
	if err := e.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Expand runs one citation expansion step.
func (e *ExplorationsClient) Expand(ctx context.Context, id string, req *types.ExpandRequest) (*types.ExpansionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("explorer: expand request is required")
	}
	return e.step(ctx, id, "expand", req)
}

// Siblings runs one sibling expansion step.
func (e *ExplorationsClient) Siblings(ctx context.Context, id string, req *types.SiblingsRequest) (*types.ExpansionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("explorer: siblings request is required")
	}
	return e.step(ctx, id, "siblings", req)
}

// Rescore reapplies weights and thresholds without fetching. A nil request
// rescores with the current configuration.
func (e *ExplorationsClient) Rescore(ctx context.Context, id string, req *types.RescoreRequest) (*types.ExpansionResult, error) {
	if req == nil {
		req = &types.RescoreRequest{}
	}
	return e.step(ctx, id, "rescore", req)
}

func (e *ExplorationsClient) step(ctx context.Context, id, action string, body interface{}) (*types.ExpansionResult, error) {
	if id == "" {
		return nil, fmt.Errorf("explorer: exploration id is required")
	}
	var out types.ExpansionResult
	if err := e.client.post(ctx, explorationPath(id, action), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetStatus applies candidate overrides atomically and returns the updated
// exploration.
func (e *ExplorationsClient) SetStatus(ctx context.Context, id string, changes ...types.StatusChange) (*types.Exploration, error) {
	if id == "" {
		return nil, fmt.Errorf("explorer: exploration id is required")
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("explorer: at least one status change is required")
	}
	var out types.Exploration
	if err := e.client.post(ctx, explorationPath(id, "status"), types.StatusRequest{Changes: changes}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rebuild recomputes the seed aggregate from the current members.
func (e *ExplorationsClient) Rebuild(ctx context.Context, id string, expectedGeneration *int) (*types.RebuildResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("explorer: exploration id is required")
	}
	var out types.RebuildResponse
	if err := e.client.post(ctx, explorationPath(id, "rebuild"), types.RebuildRequest{ExpectedGeneration: expectedGeneration}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Archive writes a snapshot to object storage and marks the exploration
// read-only.
func (e *ExplorationsClient) Archive(ctx context.Context, id string) (*types.ArchiveResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("explorer: exploration id is required")
	}
	var out types.ArchiveResponse
	if err := e.client.post(ctx, explorationPath(id, "archive"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Presets lists the named weight vectors.
func (e *ExplorationsClient) Presets(ctx context.Context) (*types.PresetsResponse, error) {
	var out types.PresetsResponse
	if err := e.client.get(ctx, "/api/v1/weight-presets", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
